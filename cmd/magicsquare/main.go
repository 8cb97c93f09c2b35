package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/quentinus95/parallelmagicsquare/parallelmagicsquare"
)

func main() {
	size := flag.Int("n", 4, "side length of the square")
	workers := flag.Int("workers", 0, "number of workers (0 uses all CPUs)")
	sequential := flag.Bool("sequential", false, "run the single-threaded search instead of the parallel dispatcher")
	flag.Parse()

	gen, err := parallelmagicsquare.NewMagicSquareGenerator(parallelmagicsquare.GeneratorConfig{
		Size:       *size,
		MaxWorkers: *workers,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	start := time.Now()

	var squares []parallelmagicsquare.Square
	if *sequential {
		squares, err = gen.Generate(ctx)
	} else {
		squares, err = gen.GenerateParallel(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Time : %.3f seconds\n", time.Since(start).Seconds())
	fmt.Printf("Number of magic squares : %d\n", len(squares))
	if len(squares) > 0 {
		fmt.Println("First solution :")
		fmt.Println(squares[0])
	}
}
