package charlstm

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anys2s"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

// A Batch is one mini-batch of character sequences encoded as one-hot
// tensors for next-character prediction.
//
// Features and Labels are flattened [N, V, L] tensors in row-major
// order (example, vocabulary channel, timestep); FeaturesMask and
// LabelsMask are flattened [N, L]. L is one less than the longest
// sequence in the batch, since the final character of a sequence has
// no successor to predict. At every (i, j) with mask 1, exactly one
// channel of features column (i, :, j) holds the current character
// and exactly one channel of the labels column holds the next one.
// Positions past a sequence's last transition are zero padding.
type Batch struct {
	Features     anyvec.Vector
	Labels       anyvec.Vector
	FeaturesMask anyvec.Vector
	LabelsMask   anyvec.Vector

	vocab    *Vocab
	segments []string
	maxLen   int
}

func newBatch(vocab *Vocab, segments []string) (*Batch, error) {
	b := &Batch{vocab: vocab, segments: segments}
	for _, seg := range segments {
		if l := len([]rune(seg)) - 1; l > b.maxLen {
			b.maxLen = l
		}
	}

	n, v, l := len(segments), vocab.Size(), b.maxLen
	features := make([]float32, n*v*l)
	labels := make([]float32, n*v*l)
	featuresMask := make([]float32, n*l)
	labelsMask := make([]float32, n*l)
	for i, seg := range segments {
		runes := []rune(seg)
		cur, err := vocab.Index(runes[0])
		if err != nil {
			return nil, errors.Wrap(err, "vectorize batch")
		}
		for j := 0; j+1 < len(runes); j++ {
			next, err := vocab.Index(runes[j+1])
			if err != nil {
				return nil, errors.Wrap(err, "vectorize batch")
			}
			features[(i*v+cur)*l+j] = 1
			labels[(i*v+next)*l+j] = 1
			featuresMask[i*l+j] = 1
			labelsMask[i*l+j] = 1
			cur = next
		}
	}

	b.Features = anyvec32.MakeVectorData(features)
	b.Labels = anyvec32.MakeVectorData(labels)
	b.FeaturesMask = anyvec32.MakeVectorData(featuresMask)
	b.LabelsMask = anyvec32.MakeVectorData(labelsMask)
	return b, nil
}

// NumExamples returns the number of sequences in the batch.
func (b *Batch) NumExamples() int {
	return len(b.segments)
}

// VocabSize returns the channel count V.
func (b *Batch) VocabSize() int {
	return b.vocab.Size()
}

// NumSteps returns the padded timestep count L.
func (b *Batch) NumSteps() int {
	return b.maxLen
}

// Sequences converts the batch to ragged input/output sequences for
// sequence-to-sequence training. Masked padding positions become
// absent timesteps, and sequences with no transitions are omitted.
func (b *Batch) Sequences(c anyvec.Creator) *anys2s.Batch {
	ins := make([][]anyvec.Vector, 0, len(b.segments))
	outs := make([][]anyvec.Vector, 0, len(b.segments))
	for _, seg := range b.segments {
		runes := []rune(seg)
		if len(runes) < 2 {
			continue
		}
		in := make([]anyvec.Vector, 0, len(runes)-1)
		out := make([]anyvec.Vector, 0, len(runes)-1)
		for j := 0; j+1 < len(runes); j++ {
			in = append(in, b.oneHot(runes[j]))
			out = append(out, b.oneHot(runes[j+1]))
		}
		ins = append(ins, in)
		outs = append(outs, out)
	}
	return &anys2s.Batch{
		Inputs:  anyseq.ConstSeqList(c, ins),
		Outputs: anyseq.ConstSeqList(c, outs),
	}
}

func (b *Batch) oneHot(c rune) anyvec.Vector {
	data := make([]float32, b.vocab.Size())
	data[b.vocab.mustIndex(c)] = 1
	return anyvec32.MakeVectorData(data)
}
