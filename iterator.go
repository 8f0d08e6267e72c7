package charlstm

import (
	"math/rand"

	"github.com/pkg/errors"
)

// ErrNoMoreData is returned when a batch is requested from an
// exhausted Iterator. Call Reset to begin another pass.
var ErrNoMoreData = errors.New("no more data")

// An Iterator turns a Source's segments into a shuffled, replayable
// sequence of one-hot Batches.
//
// An Iterator is single-consumer and not safe for concurrent use.
type Iterator struct {
	vocab         *Vocab
	segments      []string
	miniBatchSize int
	rng           *rand.Rand
	cursor        int
}

// NewIterator fetches src's segments and prepares a shuffled pass
// over them. The shuffle uses rng exclusively, so runs are
// reproducible given the same seed and segment order.
func NewIterator(src Source, vocab *Vocab, miniBatchSize int, rng *rand.Rand) (*Iterator, error) {
	if miniBatchSize <= 0 {
		return nil, errors.Errorf("new iterator: invalid mini-batch size %d", miniBatchSize)
	}
	segs, err := src.Segments()
	if err != nil {
		return nil, errors.Wrap(err, "new iterator")
	}
	it := &Iterator{
		vocab:         vocab,
		segments:      append([]string{}, segs...),
		miniBatchSize: miniBatchSize,
		rng:           rng,
	}
	it.Reset()
	return it, nil
}

// Reset reshuffles the segments in place and rewinds the cursor,
// beginning a new full pass.
func (it *Iterator) Reset() {
	it.rng.Shuffle(len(it.segments), func(i, j int) {
		it.segments[i], it.segments[j] = it.segments[j], it.segments[i]
	})
	it.cursor = 0
}

// HasNext reports whether another batch can be produced this pass.
func (it *Iterator) HasNext() bool {
	return it.cursor < len(it.segments)
}

// Next produces the next Batch using the configured mini-batch size.
func (it *Iterator) Next() (*Batch, error) {
	return it.NextBatch(it.miniBatchSize)
}

// NextBatch consumes up to num segments and encodes them as a Batch.
// Segments that become empty after filtering are excluded from the
// batch but still consumed. If every consumed segment was excluded,
// the Batch has zero examples; callers should skip it.
//
// It returns ErrNoMoreData once the pass is exhausted.
func (it *Iterator) NextBatch(num int) (*Batch, error) {
	if !it.HasNext() {
		return nil, errors.WithStack(ErrNoMoreData)
	}
	kept := make([]string, 0, num)
	for n := 0; n < num && it.HasNext(); n++ {
		seg := it.vocab.Filter(it.segments[it.cursor])
		it.cursor++
		if seg != "" {
			kept = append(kept, seg)
		}
	}
	return newBatch(it.vocab, kept)
}

// Split partitions the segments into a training iterator and a
// validation iterator holding roughly frac of them. The iterators
// share the receiver's vocabulary, batch size and random source.
func (it *Iterator) Split(frac float64) (training, validation *Iterator) {
	cut := len(it.segments) - int(float64(len(it.segments))*frac)
	training = it.sub(it.segments[:cut])
	validation = it.sub(it.segments[cut:])
	return
}

func (it *Iterator) sub(segs []string) *Iterator {
	return &Iterator{
		vocab:         it.vocab,
		segments:      append([]string{}, segs...),
		miniBatchSize: it.miniBatchSize,
		rng:           it.rng,
	}
}

// TotalExamples returns the number of segments per full pass.
func (it *Iterator) TotalExamples() int {
	return len(it.segments)
}

// InputSize returns the width of one feature timestep, which is the
// vocabulary size.
func (it *Iterator) InputSize() int {
	return it.vocab.Size()
}

// OutputSize returns the width of one label timestep. Inputs and
// labels share the one-hot encoding, so this equals InputSize.
func (it *Iterator) OutputSize() int {
	return it.vocab.Size()
}

// Cursor returns the number of segments consumed this pass.
func (it *Iterator) Cursor() int {
	return it.cursor
}

// BatchSize returns the configured mini-batch size.
func (it *Iterator) BatchSize() int {
	return it.miniBatchSize
}

// Vocab returns the iterator's vocabulary.
func (it *Iterator) Vocab() *Vocab {
	return it.vocab
}
