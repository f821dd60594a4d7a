package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"stemdeck/pkg/audioengine"
)

const stemExt = ".opus"

type result struct {
	src    string
	dst    string
	length time.Duration
	err    error
}

// collect lists the WAV files under dir in a stable order.
func collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".wav") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func destFor(src, destDir string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(destDir, base+stemExt)
}

// encodeAll runs a worker pool over files; results keep the input order.
func encodeAll(files []string, destDir string, workers int) []result {
	if workers < 1 {
		workers = 1
	}
	results := make([]result, len(files))
	jobs := make(chan int, len(files))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = encodeFile(files[i], destFor(files[i], destDir))
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func encodeFile(src, dst string) (r result) {
	r = result{src: src, dst: dst}
	in, err := os.Open(src)
	if err != nil {
		r.err = err
		return r
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		r.err = err
		return r
	}
	r.length, err = audioengine.StreamEncodeWavToOpus(in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		r.err = fmt.Errorf("%s: %w", filepath.Base(src), err)
		return r
	}
	r.err = os.Rename(tmp, dst)
	return r
}
