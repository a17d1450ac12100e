// Streams ann-benchmarks style HDF5 datasets into the graph builder and
// loads query vectors from plain text files. This is the ingestion side
// collaborator, the core index never touches file formats beyond its own.
package loadvec

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/semafind/vamanadb/models"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/hdf5"
)

// ---------------------------

func normalise(embedding []float32) {
	vector := blas32.Vector{N: len(embedding), Inc: 1, Data: embedding}
	norm := blas32.Nrm2(vector)
	blas32.Scal(1/norm, vector)
}

// ---------------------------

// LoadHDF5 reads the "train" dataset of the given file and produces entry
// batches on the returned channel. Payloads record the source row so search
// results can be traced back to the dataset. Angular datasets want their
// embeddings normalised.
func LoadHDF5(fpath string, batchSize int, normaliseVectors bool) (<-chan []models.Entry, uint, error) {
	f, err := hdf5.OpenFile(fpath, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open hdf5 file %s: %w", fpath, err)
	}
	dset, err := f.OpenDataset("train")
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("could not open train dataset: %w", err)
	}
	// ---------------------------
	dspace := dset.Space()
	dataBuf := make([]float32, dspace.SimpleExtentNPoints())
	if err := dset.Read(&dataBuf); err != nil {
		dset.Close()
		f.Close()
		return nil, 0, fmt.Errorf("could not read train dataset: %w", err)
	}
	dims, _, err := dspace.SimpleExtentDims()
	if err != nil {
		dset.Close()
		f.Close()
		return nil, 0, fmt.Errorf("could not read dataset dimensions: %w", err)
	}
	dset.Close()
	f.Close()
	rows, cols := dims[0], dims[1]
	log.Info().Str("path", fpath).Uint("rows", rows).Uint("cols", cols).Msg("LoadHDF5")
	// ---------------------------
	out := make(chan []models.Entry)
	go func() {
		defer close(out)
		bar := progressbar.Default(int64(rows), "loading")
		batch := make([]models.Entry, 0, batchSize)
		for i := uint(0); i < rows; i++ {
			embedding := dataBuf[i*cols : (i+1)*cols]
			if normaliseVectors {
				normalise(embedding)
			}
			batch = append(batch, models.Entry{
				Vector:  embedding,
				Payload: []byte(fmt.Sprintf("train-%d", i)),
			})
			bar.Add(1)
			if len(batch) == batchSize {
				out <- batch
				batch = make([]models.Entry, 0, batchSize)
			}
		}
		if len(batch) > 0 {
			out <- batch
		}
	}()
	return out, cols, nil
}

// ---------------------------

// ReadQueryVector parses a newline separated list of floats.
func ReadQueryVector(fpath string) ([]float32, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, fmt.Errorf("could not open query file %s: %w", fpath, err)
	}
	defer f.Close()
	// ---------------------------
	vector := make([]float32, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		value, err := strconv.ParseFloat(line, 32)
		if err != nil {
			return nil, fmt.Errorf("could not parse query value %q: %w", line, err)
		}
		vector = append(vector, float32(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read query file: %w", err)
	}
	return vector, nil
}
