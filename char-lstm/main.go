package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	charlstm "github.com/joebowbeer/CharModelingExample"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"golang.org/x/text/encoding/unicode"
)

var Models = []charlstm.Model{&charlstm.LSTM{}}

const (
	outputPermissions = 0755

	// Segments per training mini-batch.
	miniBatchSize = 32
)

func main() {
	if len(os.Args) < 2 {
		dieUsage()
	}
	switch os.Args[1] {
	case "train":
		trainCommand()
	case "gen":
		genCommand()
	case "help":
		helpCommand()
	default:
		dieUsage()
	}
}

func trainCommand() {
	if len(os.Args) < 5 {
		dieUsage()
	}
	modelFile := os.Args[3]

	model := modelForName(os.Args[2])
	if data, err := os.ReadFile(modelFile); err == nil {
		model = loadModel(data)
		log.Println("Loaded model from file.")
	} else {
		log.Println("Created new model.")
	}
	model.TrainingFlags().Parse(os.Args[5:])

	rng := newRand()
	src, vocab := corpusSource(os.Args[4])
	it, err := charlstm.NewIterator(src, vocab, miniBatchSize, rng)
	if err != nil {
		essentials.Die(err)
	}

	if err := model.Train(it, rng); err != nil {
		essentials.Die(err)
	}

	encoded, err := serializer.SerializeWithType(model)
	if err != nil {
		essentials.Die("Failed to serialize model:", err)
	}
	if err := os.WriteFile(modelFile, encoded, outputPermissions); err != nil {
		essentials.Die("Failed to save:", err)
	}
}

func genCommand() {
	if len(os.Args) < 3 {
		dieUsage()
	}
	data, err := os.ReadFile(os.Args[2])
	if err != nil {
		essentials.Die("Failed to read model:", err)
	}
	model := loadModel(data)
	model.GenerationFlags().Parse(os.Args[3:])

	samples, err := model.Generate(newRand())
	if err != nil {
		essentials.Die(err)
	}
	for _, sample := range samples {
		fmt.Print(sample)
	}
}

func helpCommand() {
	if len(os.Args) != 3 {
		dieUsage()
	}
	m := modelForName(os.Args[2])
	fmt.Fprintf(os.Stderr, "Usage for training:\n\n")
	m.TrainingFlags().PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nUsage for generation:\n\n")
	m.GenerationFlags().PrintDefaults()
}

func loadModel(data []byte) charlstm.Model {
	x, err := serializer.DeserializeWithType(data)
	if err != nil {
		essentials.Die("Failed to deserialize model:", err)
	}
	model, ok := x.(charlstm.Model)
	if !ok {
		essentials.Die(fmt.Sprintf("Loaded type was not a model but a %T", x))
	}
	return model
}

// corpusSource maps a corpus argument to a segment source and the
// matching character set. "shakespeare" and "dance" download and
// cache their corpora; anything else is a local directory of text
// files or an HTML title index.
func corpusSource(name string) (charlstm.Source, *charlstm.Vocab) {
	utf8 := unicode.UTF8
	switch name {
	case "shakespeare":
		dir, err := fetchShakespeare()
		if err != nil {
			essentials.Die(err)
		}
		return &charlstm.DirSource{Dir: dir, Encoding: utf8}, mustVocab(charlstm.MinimalChars())
	case "dance":
		file, err := fetchDance()
		if err != nil {
			essentials.Die(err)
		}
		return &charlstm.DanceSource{Path: file, Encoding: utf8}, mustVocab(charlstm.DefaultChars())
	default:
		info, err := os.Stat(name)
		if err != nil {
			essentials.Die(err)
		}
		if info.IsDir() {
			return &charlstm.DirSource{Dir: name, Encoding: utf8},
				mustVocab(charlstm.MinimalChars())
		}
		return &charlstm.DanceSource{Path: name, Encoding: utf8},
			mustVocab(charlstm.DefaultChars())
	}
}

func mustVocab(chars []rune) *charlstm.Vocab {
	v, err := charlstm.NewVocab(chars)
	if err != nil {
		essentials.Die(err)
	}
	return v
}

func newRand() *rand.Rand {
	seed := time.Now().UnixNano()
	if s := os.Getenv("CHAR_LSTM_SEED"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			essentials.Die("Invalid CHAR_LSTM_SEED value:", s)
		}
		seed = parsed
	}
	return rand.New(rand.NewSource(seed))
}

func modelForName(name string) charlstm.Model {
	for _, m := range Models {
		if m.Name() == name {
			return m
		}
	}
	fmt.Fprintln(os.Stderr, "no such model: "+name)
	dieUsage()
	return nil
}

func dieUsage() {
	fmt.Fprintln(os.Stderr, "Usage: char-lstm train <model> <model-file> <corpus> [args]\n"+
		"       char-lstm gen <model-file> [args]\n"+
		"       char-lstm help <model>\n\n"+
		"Available models:")
	for _, m := range Models {
		fmt.Fprintln(os.Stderr, " "+m.Name())
	}
	fmt.Fprintln(os.Stderr, "\nCorpora:\n"+
		" shakespeare  complete works of Shakespeare (downloaded)\n"+
		" dance        American country dance titles (downloaded)\n"+
		" <path>       directory of text files, or an HTML title index")
	fmt.Fprintln(os.Stderr, "\nEnvironment variables:")
	fmt.Fprintln(os.Stderr, " CHAR_LSTM_SEED  seed for shuffling and sampling")
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}
