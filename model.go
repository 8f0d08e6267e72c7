package charlstm

import (
	"flag"
	"math/rand"

	"github.com/unixpickle/serializer"
)

// A Model is a trainable character-level language model.
type Model interface {
	serializer.Serializer

	Name() string

	TrainingFlags() *flag.FlagSet
	GenerationFlags() *flag.FlagSet

	Train(it *Iterator, rng *rand.Rand) error
	Generate(rng *rand.Rand) ([]string, error)
}
