package feed

import (
	"bufio"
	"fmt"
	"os"
)

// ForEachLine streams a line file through fn, stopping at the first error.
func ForEachLine(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("feed: read %s: %w", path, err)
	}
	return nil
}

// ReplayFile pushes every line of a file through the ingestor, returning
// how many lines were accepted and how many were skipped.
func ReplayFile(path string, in *Ingestor) (accepted, skipped int, err error) {
	err = ForEachLine(path, func(line string) error {
		if in.OnLine(line) {
			accepted++
		} else {
			skipped++
		}
		return nil
	})
	return accepted, skipped, err
}
