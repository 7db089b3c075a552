// main.go -- dedup: near-duplicate detection over a parquet corpus

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/opencoff/pflag"
	"github.com/rs/zerolog"

	dedup "github.com/wheynelau/go-textdedup"
)

// Exit codes, one per error kind.
const (
	exitConfig    = 2
	exitInput     = 3
	exitCancelled = 4
	exitIO        = 5
	exitInternal  = 6
)

func main() {
	var (
		b, r        int
		numPerm     int
		ngrams      int
		threshold   float64
		minLength   int
		hashBits    uint
		batchSize   int
		threads     int
		seed        uint64
		parquetPath string
		mainCol     string
		idxCol      string
		ufOutput    string
		streaming   bool
		verbose     bool
	)

	usage := fmt.Sprintf("%s --parquet-path PATH [options]", os.Args[0])

	flag.IntVar(&b, "b", 0, "Number of LSH bands `B` (0 derives b and r from the threshold)")
	flag.IntVar(&r, "r", 0, "Rows per band `R`")
	flag.IntVarP(&numPerm, "num-perm", "p", 200, "Number of MinHash permutations `N`")
	flag.IntVarP(&ngrams, "n-grams", "n", 2, "n-gram size in tokens `K`")
	flag.Float64VarP(&threshold, "threshold", "t", 0.5, "Jaccard `threshold` for parameter selection")
	flag.IntVar(&minLength, "min-length", 0, "Drop documents with fewer than `L` tokens")
	flag.UintVar(&hashBits, "hash-bits", 64, "Signature element width: 16, 32 or 64 `bits`")
	flag.IntVar(&batchSize, "batch-size", 10000, "Documents per embed batch `M`")
	flag.IntVarP(&threads, "threads", "j", 0, "Worker `count` (0 = all CPUs)")
	flag.Uint64Var(&seed, "seed", 42, "Permutation and hash `seed`")
	flag.StringVar(&parquetPath, "parquet-path", "", "Input parquet `file`")
	flag.StringVar(&mainCol, "main-col", "text", "Name of the text `column`")
	flag.StringVar(&idxCol, "idx-col", "id", "Name of the id `column` (empty assigns row numbers)")
	flag.StringVar(&ufOutput, "uf-output", "uf.json", "Union-find dump `path`")
	flag.BoolVar(&streaming, "streaming", false, "Read the corpus in column chunks of --batch-size rows")
	flag.BoolVarP(&verbose, "verbose", "v", false, "Log phase progress")
	flag.Usage = func() {
		fmt.Printf("dedup - MinHash/LSH near-duplicate detection\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if parquetPath == "" {
		die(exitConfig, "no input; use --parquet-path\nUsage: %s", usage)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	readBatch := batchSize
	if !streaming {
		// non-streaming reads pull the whole file in one column read
		readBatch = 0
	}
	src, err := newParquetSource(parquetPath, mainCol, idxCol, readBatch)
	if err != nil {
		fail(err)
	}
	defer src.Close()

	cfg := dedup.Config{
		NumPerm:    numPerm,
		B:          b,
		R:          r,
		NGram:      ngrams,
		Threshold:  threshold,
		MinLength:  minLength,
		HashBits:   uint8(hashBits),
		BatchSize:  batchSize,
		NumThreads: threads,
		Seed:       seed,
		UFOutput:   ufOutput,
		Logger:     &logger,
	}

	res, err := dedup.Run(ctx, cfg, src)
	if err != nil {
		fail(err)
	}

	out, _ := json.Marshal(struct {
		Before uint64 `json:"before"`
		After  uint64 `json:"after"`
	}{Before: res.Summary.Before, After: res.Summary.After})
	fmt.Println(string(out))
}

// fail maps an error to its exit code and dies with a one-line message.
func fail(err error) {
	switch {
	case errors.Is(err, dedup.ErrConfig):
		die(exitConfig, "%s", err)
	case errors.Is(err, dedup.ErrInput):
		die(exitInput, "%s", err)
	case errors.Is(err, dedup.ErrCancelled):
		die(exitCancelled, "%s", err)
	case errors.Is(err, dedup.ErrInternal):
		die(exitInternal, "%s", err)
	default:
		die(exitIO, "%s", err)
	}
}

// die with error
func die(code int, f string, v ...interface{}) {
	warn(f, v...)
	os.Exit(code)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}
