package parallelmagicsquare

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Empty is the sentinel for a cell that has no value placed yet.
const Empty = 0

// ErrInvalidConfiguration is returned when the generator is configured with a
// non-positive square size.
var ErrInvalidConfiguration = errors.New("square size must be a positive integer")

// Square is an immutable snapshot of a completed magic square. Cells holds the
// values in row-major order, so the cell at (row, col) is Cells[row*Size+col].
type Square struct {
	Size  int
	Cells []int
}

// GeneratorConfig contains configuration for the generator
type GeneratorConfig struct {
	Size       int
	MaxWorkers int
}

// GeneratorStats contains search statistics
type GeneratorStats struct {
	PlacementsTried   int64
	ConstraintChecks  int64
	PruningOperations int64
	SolutionsFound    int64
	WorkersUsed       int
	SearchTime        time.Duration
}

// MagicSquareGenerator enumerates every order-N magic square using
// branch-and-bound backtracking. The search space grows factorially: order 4
// already yields 7040 squares, and sizes beyond 4 or 5 may not complete in
// practical time.
type MagicSquareGenerator struct {
	config     GeneratorConfig
	target     int
	lines      [][]int
	stats      GeneratorStats
	statsMutex sync.RWMutex
}

// partitionResult carries one first-cell partition's discoveries back to the
// dispatcher.
type partitionResult struct {
	first     int
	solutions []Square
	err       error
}

// MagicConstant returns the common line sum of an order-size magic square,
// size*(size*size+1)/2.
func MagicConstant(size int) int {
	return size * (size*size + 1) / 2
}

// NewMagicSquareGenerator creates a new generator for the configured square
// size. It fails fast with ErrInvalidConfiguration for a non-positive size.
func NewMagicSquareGenerator(config GeneratorConfig) (*MagicSquareGenerator, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConfiguration, config.Size)
	}

	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}

	return &MagicSquareGenerator{
		config: config,
		target: MagicConstant(config.Size),
		lines:  magicLines(config.Size),
		stats: GeneratorStats{
			WorkersUsed: config.MaxWorkers,
		},
	}, nil
}

// magicLines builds the cell-index list of every line whose sum is
// constrained: size rows, size columns, the main diagonal and the
// anti-diagonal. Each line lists its cells in scan order.
func magicLines(size int) [][]int {
	lines := make([][]int, 0, 2*size+2)

	for row := 0; row < size; row++ {
		line := make([]int, size)
		for col := 0; col < size; col++ {
			line[col] = row*size + col
		}
		lines = append(lines, line)
	}

	for col := 0; col < size; col++ {
		line := make([]int, size)
		for row := 0; row < size; row++ {
			line[row] = row*size + col
		}
		lines = append(lines, line)
	}

	diag := make([]int, size)
	anti := make([]int, size)
	for i := 0; i < size; i++ {
		diag[i] = i*size + i
		anti[i] = (size-1-i)*size + i
	}
	lines = append(lines, diag, anti)

	return lines
}

// TargetSum returns the line sum every row, column, and diagonal must reach.
func (g *MagicSquareGenerator) TargetSum() int {
	return g.target
}

// Size returns the configured side length.
func (g *MagicSquareGenerator) Size() int {
	return g.config.Size
}

// Generate runs the whole search on the calling goroutine and returns every
// magic square of the configured size in deterministic discovery order.
func (g *MagicSquareGenerator) Generate(ctx context.Context) ([]Square, error) {
	startTime := time.Now()

	cellCount := g.config.Size * g.config.Size
	cells := make([]int, cellCount)
	used := make([]bool, cellCount)

	var solutions []Square
	err := g.search(ctx, cells, used, 0, func(sq Square) {
		solutions = append(solutions, sq)
	})

	g.noteSearchTime(time.Since(startTime))
	if err != nil {
		return nil, err
	}
	return solutions, nil
}

// GenerateParallel partitions the search on the value placed in the first
// cell and explores the partitions concurrently on a bounded worker pool.
// Each partition owns a private board; partition buffers are merged after all
// workers have joined, so the result holds the same squares as Generate,
// ordered only up to partition completion interleaving.
func (g *MagicSquareGenerator) GenerateParallel(ctx context.Context) ([]Square, error) {
	startTime := time.Now()

	cellCount := g.config.Size * g.config.Size
	workers := g.config.MaxWorkers
	if workers > cellCount {
		workers = cellCount
	}

	taskChan := make(chan int, cellCount)
	resultChan := make(chan partitionResult, cellCount)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for first := range taskChan {
				resultChan <- g.searchPartition(ctx, first)
			}
		}()
	}

	// One partition per candidate value for the first cell.
	for value := 1; value <= cellCount; value++ {
		taskChan <- value
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var solutions []Square
	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = result.err
		}
		solutions = append(solutions, result.solutions...)
	}

	g.noteSearchTime(time.Since(startTime))
	if firstErr != nil {
		return nil, firstErr
	}
	return solutions, nil
}

// searchPartition explores the subtree rooted at the given first-cell value
// on a private board.
func (g *MagicSquareGenerator) searchPartition(ctx context.Context, first int) partitionResult {
	cellCount := g.config.Size * g.config.Size
	cells := make([]int, cellCount)
	used := make([]bool, cellCount)

	cells[0] = first
	used[first-1] = true
	atomic.AddInt64(&g.stats.PlacementsTried, 1)

	result := partitionResult{first: first}
	record := func(sq Square) {
		result.solutions = append(result.solutions, sq)
	}

	if !g.isConsistent(cells) {
		atomic.AddInt64(&g.stats.PruningOperations, 1)
		return result
	}

	if g.isComplete(cells) {
		atomic.AddInt64(&g.stats.SolutionsFound, 1)
		record(g.snapshot(cells))
		return result
	}

	result.err = g.search(ctx, cells, used, 1, record)
	return result
}

// search explores every way of filling the cells at index position and
// beyond, given the values already committed before position. Candidates are
// tried in ascending order and every placement is undone before the next one,
// so sibling branches never observe a stale value. Discoveries are reported
// only through record.
func (g *MagicSquareGenerator) search(ctx context.Context, cells []int, used []bool, position int, record func(Square)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for value := 1; value <= len(cells); value++ {
		if used[value-1] {
			continue
		}

		cells[position] = value
		used[value-1] = true
		atomic.AddInt64(&g.stats.PlacementsTried, 1)

		if g.isConsistent(cells) {
			if g.isComplete(cells) {
				atomic.AddInt64(&g.stats.SolutionsFound, 1)
				record(g.snapshot(cells))
			} else {
				if err := g.search(ctx, cells, used, position+1, record); err != nil {
					cells[position] = Empty
					used[value-1] = false
					return err
				}
			}
		} else {
			atomic.AddInt64(&g.stats.PruningOperations, 1)
		}

		// Backtrack
		cells[position] = Empty
		used[value-1] = false
	}

	return nil
}

// isConsistent reports whether the partially filled board can still become a
// magic square. Each line is summed in scan order and rejected the instant
// its partial sum exceeds the target, which is sound because all values are
// positive. A line is abandoned at its first empty cell; a fully filled line
// must hit the target exactly.
func (g *MagicSquareGenerator) isConsistent(cells []int) bool {
	atomic.AddInt64(&g.stats.ConstraintChecks, 1)

	for _, line := range g.lines {
		sum := 0
		open := false

		for _, idx := range line {
			value := cells[idx]
			if value == Empty {
				open = true
				break
			}

			sum += value
			if sum > g.target {
				return false
			}
		}

		if !open && sum != g.target {
			return false
		}
	}

	return true
}

// isComplete reports whether every cell holds a value.
func (g *MagicSquareGenerator) isComplete(cells []int) bool {
	for _, value := range cells {
		if value == Empty {
			return false
		}
	}
	return true
}

// snapshot deep-copies the board into an immutable Square.
func (g *MagicSquareGenerator) snapshot(cells []int) Square {
	copied := make([]int, len(cells))
	copy(copied, cells)
	return Square{Size: g.config.Size, Cells: copied}
}

// Statistics and utility methods

func (g *MagicSquareGenerator) noteSearchTime(elapsed time.Duration) {
	g.statsMutex.Lock()
	defer g.statsMutex.Unlock()
	g.stats.SearchTime = elapsed
}

// Stats returns a snapshot of the search counters.
func (g *MagicSquareGenerator) Stats() GeneratorStats {
	g.statsMutex.RLock()
	defer g.statsMutex.RUnlock()

	return GeneratorStats{
		PlacementsTried:   atomic.LoadInt64(&g.stats.PlacementsTried),
		ConstraintChecks:  atomic.LoadInt64(&g.stats.ConstraintChecks),
		PruningOperations: atomic.LoadInt64(&g.stats.PruningOperations),
		SolutionsFound:    atomic.LoadInt64(&g.stats.SolutionsFound),
		WorkersUsed:       g.stats.WorkersUsed,
		SearchTime:        g.stats.SearchTime,
	}
}

// Reset clears the search counters.
func (g *MagicSquareGenerator) Reset() {
	g.statsMutex.Lock()
	defer g.statsMutex.Unlock()

	atomic.StoreInt64(&g.stats.PlacementsTried, 0)
	atomic.StoreInt64(&g.stats.ConstraintChecks, 0)
	atomic.StoreInt64(&g.stats.PruningOperations, 0)
	atomic.StoreInt64(&g.stats.SolutionsFound, 0)
	g.stats.SearchTime = 0
}

// Square methods

// Get returns the value at (row, col).
func (s Square) Get(row, col int) int {
	return s.Cells[row*s.Size+col]
}

// IsMagic reports whether the square holds each of 1..Size² exactly once with
// every row, column, and both diagonals summing to the magic constant.
func (s Square) IsMagic() bool {
	cellCount := s.Size * s.Size
	if len(s.Cells) != cellCount {
		return false
	}

	seen := make([]bool, cellCount)
	for _, value := range s.Cells {
		if value < 1 || value > cellCount || seen[value-1] {
			return false
		}
		seen[value-1] = true
	}

	target := MagicConstant(s.Size)
	for _, line := range magicLines(s.Size) {
		sum := 0
		for _, idx := range line {
			sum += s.Cells[idx]
		}
		if sum != target {
			return false
		}
	}

	return true
}

// String renders the square as rows of tab-separated values under a dashed
// border line.
func (s Square) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("-", 4*s.Size))
	b.WriteString("\n|")

	for i, value := range s.Cells {
		if i%s.Size == 0 && i != 0 {
			b.WriteString("\n|")
		}
		fmt.Fprintf(&b, "%d\t", value)
	}

	return b.String()
}
