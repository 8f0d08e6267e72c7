package charlstm

import (
	"bytes"
	"encoding/gob"
	"flag"
	"log"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anynet/anys2s"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
	"github.com/unixpickle/serializer"
)

func init() {
	var l LSTM
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLSTM)
}

// LSTM is a Model backed by a stack of LSTM blocks with a softmax
// classification head over the vocabulary.
type LSTM struct {
	lstmFlags

	Block anyrnn.Block

	// Chars is the character set the model was trained on, in
	// index order. It is persisted with the model so generation
	// rebuilds the exact mapping.
	Chars string

	state anyrnn.State
}

type lstmCheckpoint struct {
	Chars string
	Block []byte
}

// DeserializeLSTM decodes a model previously encoded by Serialize.
func DeserializeLSTM(d []byte) (*LSTM, error) {
	var ck lstmCheckpoint
	if err := gob.NewDecoder(bytes.NewReader(d)).Decode(&ck); err != nil {
		return nil, essentials.AddCtx("deserialize LSTM", err)
	}
	var b anyrnn.Block
	if err := serializer.DeserializeAny(ck.Block, &b); err != nil {
		return nil, essentials.AddCtx("deserialize LSTM", err)
	}
	return &LSTM{Block: b, Chars: ck.Chars}, nil
}

func (l *LSTM) Name() string {
	return "lstm"
}

func (l *LSTM) SerializerType() string {
	return "github.com/joebowbeer/CharModelingExample.LSTM"
}

func (l *LSTM) Serialize() ([]byte, error) {
	blockData, err := serializer.SerializeAny(l.Block)
	if err != nil {
		return nil, essentials.AddCtx("serialize LSTM", err)
	}
	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(&lstmCheckpoint{Chars: l.Chars, Block: blockData})
	if err != nil {
		return nil, essentials.AddCtx("serialize LSTM", err)
	}
	return buf.Bytes(), nil
}

// Train runs epochs over the iterator's batches until the epoch
// limit is reached or the process is interrupted. Every few
// mini-batches it logs the current cost and a handful of generated
// samples.
func (l *LSTM) Train(it *Iterator, rng *rand.Rand) error {
	if l.Block == nil {
		l.Chars = it.Vocab().Chars()
		l.createModel(it.InputSize())
	} else if l.Chars != it.Vocab().Chars() {
		return errors.New("train: iterator vocabulary does not match model")
	}

	c := anyvec32.CurrentCreator()
	t := &anys2s.Trainer{
		Func: func(s anyseq.Seq) anyseq.Seq {
			return anyrnn.Map(s, l.Block)
		},
		Cost:    anynet.DotCost{},
		Params:  l.Block.(anynet.Parameterizer).Parameters(),
		Average: true,
	}
	adam := &anysgd.Adam{}

	training, validation := it.Split(l.Validation)
	log.Printf("Training: %d segments", training.TotalExamples())
	log.Printf("Validation: %d segments", validation.TotalExamples())

	sampler := &Sampler{Vocab: it.Vocab(), Rng: rng, MaxLen: l.SampleLen}

	log.Println("Training (ctrl+c to stop)...")
	l.setDropout(true)
	defer l.setDropout(false)

	r := rip.NewRIP()
	var batchNum int
	for epoch := 0; (l.Epochs == 0 || epoch < l.Epochs) && !r.Done(); epoch++ {
		training.Reset()
		for training.HasNext() && !r.Done() {
			batch, err := training.Next()
			if err != nil {
				return err
			}
			if batch.NumSteps() == 0 {
				continue
			}

			grad := adam.Transform(t.Gradient(batch.Sequences(c)))
			grad.Scale(c.MakeNumeric(-l.StepSize))
			grad.AddToVars()

			batchNum++
			if l.SampleEvery > 0 && batchNum%l.SampleEvery == 0 {
				log.Printf("batch %d: cost=%v", batchNum, t.LastCost)
				if err := l.logSamples(sampler); err != nil {
					return err
				}
			}
		}
		l.logEpoch(epoch, t, validation, c)
	}
	return nil
}

// Generate samples strings from a trained model.
func (l *LSTM) Generate(rng *rand.Rand) ([]string, error) {
	if l.Block == nil {
		return nil, errors.New("generate: model has not been trained")
	}
	vocab, err := NewVocab([]rune(l.Chars))
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}
	s := &Sampler{Vocab: vocab, Rng: rng, MaxLen: l.SampleLen}
	return s.Sample(l, l.SampleInit, l.SampleCount)
}

// Reset clears the recurrent state for n parallel sequences.
func (l *LSTM) Reset(n int) {
	l.state = l.Block.Start(n)
}

// Step advances every sequence one timestep and returns the batched
// output distributions.
func (l *LSTM) Step(in anyvec.Vector) anyvec.Vector {
	res := l.Block.Step(l.state, in)
	l.state = res.State()

	// The output layer produces log-probabilities.
	out := res.Output().Copy()
	anyvec.Exp(out)
	return out
}

func (l *LSTM) createModel(charCount int) {
	c := anyvec32.CurrentCreator()
	scaler := c.MakeNumeric(16)
	block := anyrnn.Stack{}
	inCount := charCount
	for i := 0; i < l.Layers; i++ {
		block = append(block,
			anyrnn.NewLSTM(c, inCount, l.Hidden).ScaleInWeights(scaler),
			&anyrnn.LayerBlock{Layer: &anynet.Dropout{KeepProb: l.Dropout}})
		inCount = l.Hidden
	}
	block = append(block, &anyrnn.LayerBlock{
		Layer: anynet.Net{
			anynet.NewFC(c, inCount, charCount),
			anynet.LogSoftmax,
		},
	})
	l.Block = block
}

func (l *LSTM) setDropout(enabled bool) {
	stack, ok := l.Block.(anyrnn.Stack)
	if !ok {
		return
	}
	for _, block := range stack {
		if block, ok := block.(*anyrnn.LayerBlock); ok {
			if do, ok := block.Layer.(*anynet.Dropout); ok {
				do.Enabled = enabled
			}
		}
	}
}

func (l *LSTM) logSamples(s *Sampler) error {
	l.setDropout(false)
	defer l.setDropout(true)
	samples, err := s.Sample(l, l.SampleInit, l.SampleCount)
	if err != nil {
		return err
	}
	for i, sample := range samples {
		log.Printf("sample %d: %q", i, sample)
	}
	return nil
}

func (l *LSTM) logEpoch(epoch int, t *anys2s.Trainer, validation *Iterator, c anyvec.Creator) {
	l.setDropout(false)
	defer l.setDropout(true)

	validation.Reset()
	if validation.HasNext() {
		batch, err := validation.Next()
		if err == nil && batch.NumSteps() > 0 {
			v := anyvec.Sum(t.TotalCost(batch.Sequences(c)).Output())
			log.Printf("epoch %d: cost=%v validation=%v", epoch, t.LastCost, v)
			return
		}
	}
	log.Printf("epoch %d: cost=%v", epoch, t.LastCost)
}

type lstmFlags struct {
	StepSize   float64
	Validation float64
	Dropout    float64
	Hidden     int
	Layers     int
	Epochs     int

	SampleEvery int
	SampleCount int
	SampleLen   int
	SampleInit  string
}

func (l *lstmFlags) TrainingFlags() *flag.FlagSet {
	res := flag.NewFlagSet("lstm", flag.ExitOnError)
	res.IntVar(&l.Hidden, "hidden", 200, "hidden units per LSTM layer")
	res.IntVar(&l.Layers, "layers", 2, "LSTM layer count")
	res.Float64Var(&l.StepSize, "step", 0.001, "step size")
	res.Float64Var(&l.Validation, "validation", 0.1, "validation fraction")
	res.Float64Var(&l.Dropout, "dropout", 0.5, "dropout remain probability")
	res.IntVar(&l.Epochs, "epochs", 20, "training epochs (0 to run until interrupted)")
	res.IntVar(&l.SampleEvery, "sampleevery", 4,
		"mini-batches between sample printouts (0 to disable)")
	l.addSampleFlags(res)
	return res
}

func (l *lstmFlags) GenerationFlags() *flag.FlagSet {
	res := flag.NewFlagSet("lstm", flag.ExitOnError)
	l.addSampleFlags(res)
	return res
}

func (l *lstmFlags) addSampleFlags(res *flag.FlagSet) {
	res.IntVar(&l.SampleCount, "samples", 3, "number of samples to generate")
	res.IntVar(&l.SampleLen, "length", 200, "maximum characters per sample (0 for unbounded)")
	res.StringVar(&l.SampleInit, "init", "", "priming text (random character if empty)")
}
