package charlstm

import (
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
)

func testVocab(t *testing.T, chars string) *Vocab {
	t.Helper()
	v, err := NewVocab([]rune(chars))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func testIterator(t *testing.T, vocab *Vocab, segs []string, batchSize int, seed int64) *Iterator {
	t.Helper()
	it, err := NewIterator(StaticSource(segs), vocab, batchSize, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatal(err)
	}
	return it
}

func TestIteratorEndToEnd(t *testing.T) {
	vocab := testVocab(t, "ab\n")
	it := testIterator(t, vocab, []string{"ab\n"}, 1, 1)

	if it.InputSize() != 3 || it.OutputSize() != 3 {
		t.Fatalf("sizes: got %d/%d, want 3/3", it.InputSize(), it.OutputSize())
	}

	batch, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if batch.NumExamples() != 1 || batch.NumSteps() != 2 {
		t.Fatalf("batch shape: got %dx%d, want 1x2", batch.NumExamples(), batch.NumSteps())
	}

	// Layout is [example, channel, step] row-major with V=3, L=2.
	features := batch.Features.Data().([]float32)
	labels := batch.Labels.Data().([]float32)
	wantFeatures := []float32{1, 0, 0, 1, 0, 0}
	wantLabels := []float32{0, 0, 1, 0, 0, 1}
	if !reflect.DeepEqual(features, wantFeatures) {
		t.Errorf("features: got %v, want %v", features, wantFeatures)
	}
	if !reflect.DeepEqual(labels, wantLabels) {
		t.Errorf("labels: got %v, want %v", labels, wantLabels)
	}
	for _, mask := range [][]float32{
		batch.FeaturesMask.Data().([]float32),
		batch.LabelsMask.Data().([]float32),
	} {
		if !reflect.DeepEqual(mask, []float32{1, 1}) {
			t.Errorf("mask: got %v, want [1 1]", mask)
		}
	}
}

func TestIteratorResetDrain(t *testing.T) {
	vocab := testVocab(t, "ab\n")
	segs := []string{"a\n", "b\n", "ab\n", "ba\n", "aab\n"}
	it := testIterator(t, vocab, segs, 2, 1)

	for pass := 0; pass < 2; pass++ {
		var drained []string
		var batches int
		for it.HasNext() {
			batch, err := it.Next()
			if err != nil {
				t.Fatal(err)
			}
			drained = append(drained, batch.segments...)
			batches++
		}
		if batches != 3 {
			t.Errorf("pass %d: got %d batches, want 3", pass, batches)
		}
		if it.Cursor() != it.TotalExamples() {
			t.Errorf("pass %d: cursor %d, want %d", pass, it.Cursor(), it.TotalExamples())
		}
		sort.Strings(drained)
		want := append([]string{}, segs...)
		sort.Strings(want)
		if !reflect.DeepEqual(drained, want) {
			t.Errorf("pass %d: drained %q, want %q", pass, drained, want)
		}

		if _, err := it.Next(); !errors.Is(err, ErrNoMoreData) {
			t.Errorf("pass %d: exhausted error = %v, want ErrNoMoreData", pass, err)
		}
		it.Reset()
	}
}

func TestIteratorShuffleReproducible(t *testing.T) {
	vocab := testVocab(t, "ab\n")
	segs := []string{"a\n", "b\n", "ab\n", "ba\n", "aab\n", "abb\n", "bb\n"}
	a := testIterator(t, vocab, segs, 2, 42)
	b := testIterator(t, vocab, segs, 2, 42)
	if !reflect.DeepEqual(a.segments, b.segments) {
		t.Error("same seed should produce the same shuffle")
	}
}

func TestIteratorFiltersInvalidChars(t *testing.T) {
	vocab := testVocab(t, "a\n")
	it := testIterator(t, vocab, []string{"axyza\n"}, 1, 1)

	batch, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got := batch.segments[0]; got != "aa\n" {
		t.Errorf("filtered segment: got %q, want %q", got, "aa\n")
	}
}

func TestIteratorDropsEmptySegments(t *testing.T) {
	vocab := testVocab(t, "a\n")
	it := testIterator(t, vocab, []string{"xyz", "a\n"}, 2, 1)

	batch, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if batch.NumExamples() != 1 {
		t.Errorf("examples: got %d, want 1", batch.NumExamples())
	}
	// The dropped segment is still consumed.
	if it.Cursor() != 2 {
		t.Errorf("cursor: got %d, want 2", it.Cursor())
	}
}

func TestIteratorAllSegmentsEmpty(t *testing.T) {
	vocab := testVocab(t, "a\n")
	it := testIterator(t, vocab, []string{"xyz", "qqq"}, 2, 1)

	batch, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if batch.NumExamples() != 0 || batch.NumSteps() != 0 {
		t.Errorf("batch shape: got %dx%d, want 0x0", batch.NumExamples(), batch.NumSteps())
	}
	if batch.Features.Len() != 0 {
		t.Errorf("features length: got %d, want 0", batch.Features.Len())
	}
	if it.HasNext() {
		t.Error("iterator should be exhausted")
	}
}

func TestBatchMasks(t *testing.T) {
	vocab := testVocab(t, "ab\n")
	it := testIterator(t, vocab, []string{"ab\n", "a\n", "abba\n"}, 3, 1)

	batch, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	n, v, l := batch.NumExamples(), batch.VocabSize(), batch.NumSteps()
	features := batch.Features.Data().([]float32)
	labels := batch.Labels.Data().([]float32)
	featuresMask := batch.FeaturesMask.Data().([]float32)
	labelsMask := batch.LabelsMask.Data().([]float32)

	for i := 0; i < n; i++ {
		steps := len([]rune(batch.segments[i])) - 1
		for j := 0; j < l; j++ {
			fm := featuresMask[i*l+j]
			lm := labelsMask[i*l+j]
			if fm != lm {
				t.Fatalf("masks disagree at (%d,%d): %v vs %v", i, j, fm, lm)
			}
			want := float32(0)
			if j < steps {
				want = 1
			}
			if fm != want {
				t.Fatalf("mask at (%d,%d): got %v, want %v", i, j, fm, want)
			}

			var fSet, lSet int
			for ch := 0; ch < v; ch++ {
				if features[(i*v+ch)*l+j] == 1 {
					fSet++
				}
				if labels[(i*v+ch)*l+j] == 1 {
					lSet++
				}
			}
			wantSet := 0
			if j < steps {
				wantSet = 1
			}
			if fSet != wantSet || lSet != wantSet {
				t.Fatalf("channels set at (%d,%d): features=%d labels=%d, want %d",
					i, j, fSet, lSet, wantSet)
			}
		}
	}
}

func TestBatchSequences(t *testing.T) {
	vocab := testVocab(t, "ab\n")
	it := testIterator(t, vocab, []string{"ab\n", "\n"}, 2, 1)

	batch, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	seqs := batch.Sequences(anyvec32.CurrentCreator())
	// "ab\n" has two transitions; the lone "\n" has none and is
	// omitted from the ragged sequences.
	if got := len(seqs.Inputs.Output()); got != 2 {
		t.Errorf("input timesteps: got %d, want 2", got)
	}
	if got := len(seqs.Outputs.Output()); got != 2 {
		t.Errorf("output timesteps: got %d, want 2", got)
	}
}

func TestNewIteratorInvalidBatchSize(t *testing.T) {
	vocab := testVocab(t, "a\n")
	_, err := NewIterator(StaticSource{"a\n"}, vocab, 0, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Error("expected error for zero mini-batch size")
	}
}
