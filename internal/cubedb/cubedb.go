package cubedb

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ifu-data/cubefit/internal/cube"
	"github.com/ifu-data/cubefit/internal/spectral/fitter"
)

// CubeDB wraps the checkpoint database. It satisfies cube.Store.
type CubeDB struct {
	*sql.DB
}

// schema.sql defines the runs and spaxel_results tables.
//
//go:embed schema.sql
var schemaSQL string

// New opens (or creates) the checkpoint database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func New(path string) (*CubeDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying checkpoint schema: %w", err)
	}
	return &CubeDB{db}, nil
}

// RunInfo summarises one recorded run.
type RunInfo struct {
	RunID      string
	Created    time.Time
	ConfigJSON string
	Spaxels    int
}

// CreateRun records a run with its configuration document. Calling it is
// optional; SaveResult registers unknown runs with an empty config.
func (db *CubeDB) CreateRun(runID, configJSON string) error {
	if configJSON == "" {
		configJSON = "{}"
	}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, created_unix_nanos, config_json) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET config_json = excluded.config_json`,
		runID, time.Now().UnixNano(), configJSON)
	return err
}

// Runs lists every recorded run, newest first, with its checkpoint count.
func (db *CubeDB) Runs() ([]RunInfo, error) {
	rows, err := db.Query(
		`SELECT r.run_id, r.created_unix_nanos, r.config_json, COUNT(s.run_id)
		 FROM runs r LEFT JOIN spaxel_results s ON s.run_id = r.run_id
		 GROUP BY r.run_id ORDER BY r.created_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var nanos int64
		if err := rows.Scan(&info.RunID, &nanos, &info.ConfigJSON, &info.Spaxels); err != nil {
			return nil, err
		}
		info.Created = time.Unix(0, nanos)
		out = append(out, info)
	}
	return out, rows.Err()
}

// resultBlob carries the float payload of one result. Gob handles the NaN
// sentinels that JSON and SQL REAL columns cannot.
type resultBlob struct {
	Params    []fitter.Param
	Continuum []float64
	ChiSq     float64
	RedChiSq  float64
}

// SaveResult records one finished spaxel under the run, replacing any
// earlier checkpoint for the same position.
func (db *CubeDB) SaveResult(runID string, ix cube.Index, res fitter.Result) error {
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO runs (run_id, created_unix_nanos) VALUES (?, ?)`,
		runID, time.Now().UnixNano()); err != nil {
		return err
	}

	blob, err := serializeResult(resultBlob{
		Params:    res.Params,
		Continuum: res.Continuum,
		ChiSq:     res.ChiSq,
		RedChiSq:  res.RedChiSq,
	})
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT OR REPLACE INTO spaxel_results (run_id, x, y, status, dof, iterations, result_blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, ix.X, ix.Y, int(res.Status), res.DOF, res.Iterations, blob)
	return err
}

// Completed returns every spaxel checkpointed under the run.
func (db *CubeDB) Completed(runID string) (map[cube.Index]fitter.Result, error) {
	rows, err := db.Query(
		`SELECT x, y, status, dof, iterations, result_blob FROM spaxel_results WHERE run_id = ?`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[cube.Index]fitter.Result)
	for rows.Next() {
		var (
			ix   cube.Index
			stat int
			res  fitter.Result
			blob []byte
		)
		if err := rows.Scan(&ix.X, &ix.Y, &stat, &res.DOF, &res.Iterations, &blob); err != nil {
			return nil, err
		}
		res.Status = fitter.Status(stat)

		payload, err := deserializeResult(blob)
		if err != nil {
			return nil, fmt.Errorf("checkpoint for spaxel %v: %w", ix, err)
		}
		res.Params = payload.Params
		res.Continuum = payload.Continuum
		res.ChiSq = payload.ChiSq
		res.RedChiSq = payload.RedChiSq

		out[ix] = res
	}
	return out, rows.Err()
}

// DeleteRun removes a run and all of its checkpoints.
func (db *CubeDB) DeleteRun(runID string) error {
	if _, err := db.Exec(`DELETE FROM spaxel_results WHERE run_id = ?`, runID); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	return err
}

// serializeResult compresses the result payload using gob encoding and gzip.
func serializeResult(payload resultBlob) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(payload); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeResult decodes a gob+gzip result payload.
func deserializeResult(blob []byte) (resultBlob, error) {
	var payload resultBlob
	if len(blob) == 0 {
		return payload, fmt.Errorf("empty result blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return payload, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	if err := gob.NewDecoder(gz).Decode(&payload); err != nil {
		return payload, fmt.Errorf("failed to decode result payload: %w", err)
	}
	return payload, nil
}
