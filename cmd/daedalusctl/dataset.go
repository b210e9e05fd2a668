package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"daedalus/internal/dataset"
)

func runDataset(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("dataset", flag.ContinueOnError)
	intervalsPath := fs.String("intervals", "", "BED-like intervals path")
	genomePath := fs.String("genome", "", "genome YAML path (chrom -> sequence)")
	n := fs.Int("n", 0, "subsample to n examples (0 keeps all)")
	seed := fs.Int64("seed", 0, "subsample/shuffle seed")
	pad := fs.Int("pad", 0, "symmetric interval padding")
	leftPad := fs.Int("left-pad", 0, "left interval padding")
	rightPad := fs.Int("right-pad", 0, "right interval padding")
	batchSize := fs.Int("batch-size", 0, "report batch shapes for this batch size")
	shuffle := fs.Bool("shuffle", false, "shuffle example order when batching")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *intervalsPath == "" || *genomePath == "" {
		return errors.New("dataset requires --intervals and --genome")
	}

	genome, err := loadGenome(*genomePath)
	if err != nil {
		return err
	}
	set, err := dataset.LoadIntervals(*intervalsPath, genome, dataset.Options{
		NExamples: *n,
		Seed:      *seed,
		Pad:       *pad,
	})
	if err != nil {
		return err
	}
	closeSet := true
	defer func() {
		if closeSet {
			_ = set.Close()
		}
	}()

	if *leftPad != 0 {
		if err := set.SetLeftPad(*leftPad); err != nil {
			return err
		}
	}
	if *rightPad != 0 {
		if err := set.SetRightPad(*rightPad); err != nil {
			return err
		}
	}

	fmt.Printf("examples=%d left_pad=%d right_pad=%d\n", set.Len(), set.LeftPad(), set.RightPad())
	if set.Len() > 0 {
		rows, label, err := set.Example(0)
		if err != nil {
			return err
		}
		cols := 0
		if len(rows) > 0 {
			cols = len(rows[0])
		}
		fmt.Printf("example_rows=%d example_cols=%d label_width=%d\n", len(rows), cols, len(label))
	}

	if *batchSize > 0 {
		batches, err := dataset.NewBatches(set, *batchSize, *shuffle, *seed)
		if err != nil {
			return err
		}
		closeSet = false
		defer func() {
			_ = batches.Close()
		}()
		fmt.Printf("batches=%d\n", batches.Len())
		if batches.Len() > 0 {
			x, y, err := batches.Batch(0)
			if err != nil {
				return err
			}
			fmt.Printf("batch_rows=%d row_width=%d label_width=%d\n", len(x), len(x[0]), len(y[0]))
		}
	}
	return nil
}
