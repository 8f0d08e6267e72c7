package charlstm

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

const sampleRetries = 10

// ErrInvalidDistribution is returned when stochastic sampling keeps
// failing, which signals a malformed model output distribution.
var ErrInvalidDistribution = errors.New("invalid probability distribution")

// A Predictor is a recurrent character model being sampled from.
// Reset clears the recurrent state and starts n parallel sequences;
// each Step advances every sequence one timestep with a batched
// one-hot input of shape [n, V] and returns batched probability
// distributions of the same shape.
type Predictor interface {
	Reset(n int)
	Step(in anyvec.Vector) anyvec.Vector
}

// A Sampler draws generated strings from a Predictor, one character
// at a time, for several parallel samples.
type Sampler struct {
	Vocab *Vocab
	Rng   *rand.Rand

	// MaxLen bounds the generated length per sample, in case the
	// model never emits the terminator. Zero means no bound.
	MaxLen int
}

// Sample primes p with init (or with one random vocabulary character
// if init is empty) and generates numSamples strings in parallel. A
// sample is finished once it ends with the "\n" terminator. The
// priming prefix is stripped from the returned strings.
func (s *Sampler) Sample(p Predictor, init string, numSamples int) ([]string, error) {
	if init == "" {
		init = string(s.Vocab.Random(s.Rng))
	}
	initRunes := []rune(init)
	v := s.Vocab.Size()

	p.Reset(numSamples)

	// Prime every sample with the initialization sequence. The
	// output of the last primed timestep seeds generation.
	var out anyvec.Vector
	for _, c := range initRunes {
		idx, err := s.Vocab.Index(c)
		if err != nil {
			return nil, errors.Wrap(err, "sample")
		}
		in := make([]float32, numSamples*v)
		for i := 0; i < numSamples; i++ {
			in[i*v+idx] = 1
		}
		out = p.Step(anyvec32.MakeVectorData(in))
	}

	bufs := make([][]rune, numSamples)
	for i := range bufs {
		bufs[i] = append([]rune{}, initRunes...)
	}

	for {
		probs := vectorData(out)
		next := make([]float32, numSamples*v)
		appended := false
		for i, buf := range bufs {
			if buf[len(buf)-1] == '\n' {
				continue
			}
			if s.MaxLen > 0 && len(buf)-len(initRunes) >= s.MaxLen {
				continue
			}
			dist := make([]float64, v)
			for j := range dist {
				dist[j] = float64(probs[i*v+j])
			}
			idx, err := sampleFromDistribution(dist, s.Rng)
			if err != nil {
				return nil, err
			}
			// Finished samples keep an all-zero input row.
			next[i*v+idx] = 1
			bufs[i] = append(buf, s.Vocab.CharAt(idx))
			appended = true
		}
		if !appended {
			break
		}
		out = p.Step(anyvec32.MakeVectorData(next))
	}

	res := make([]string, numSamples)
	for i, buf := range bufs {
		res[i] = string(buf[len(initRunes):])
	}
	return res, nil
}

// sampleFromDistribution draws an index from a probability
// distribution summing to roughly 1. The cumulative walk is retried
// with fresh draws because a floating-point sum may land slightly
// under 1.
func sampleFromDistribution(dist []float64, rng *rand.Rand) (int, error) {
	for t := 0; t < sampleRetries; t++ {
		d := rng.Float64()
		var sum float64
		for i, p := range dist {
			sum += p
			if d <= sum {
				return i, nil
			}
		}
	}
	return 0, errors.Wrapf(ErrInvalidDistribution, "no index reached after %d attempts",
		sampleRetries)
}

func vectorData(v anyvec.Vector) []float32 {
	switch data := v.Data().(type) {
	case []float32:
		return data
	case []float64:
		res := make([]float32, len(data))
		for i, x := range data {
			res[i] = float32(x)
		}
		return res
	default:
		panic(errors.Errorf("unsupported vector data type %T", data))
	}
}
