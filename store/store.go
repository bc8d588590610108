// Package store persists ensembles and mode frequencies in sqlite, so that
// expensive sampled configurations can be reloaded across runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"anharm"
)

const (
	tableModes   = "modes"
	tableConfigs = "configs"
	tableData    = "data"

	schemaTimeout = 3 * time.Second
	bulkTimeout   = 10 * time.Minute
)

// Save writes the ensemble and its mode frequencies to dbPath, replacing any
// previous content.
func Save(dbPath string, e *anharm.Ensemble, w []float64) error {
	if len(w) != e.NModes {
		panic(fmt.Sprintf("%d %d", len(w), e.NModes))
	}
	db, err := newDB(dbPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), bulkTimeout)
	defer cancel()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := save(ctx, tx, e, w); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func save(ctx context.Context, tx *sql.Tx, e *anharm.Ensemble, w []float64) error {
	modeStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (m, w) VALUES (?, ?)`, tableModes))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer modeStmt.Close()
	for m, wm := range w {
		if _, err := modeStmt.ExecContext(ctx, m, wm); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", m))
		}
	}

	cfgStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (i, rho) VALUES (?, ?)`, tableConfigs))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer cfgStmt.Close()
	for i, rho := range e.Rho {
		if _, err := cfgStmt.ExecContext(ctx, i, rho); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}

	dataStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (m, i, x, y) VALUES (?, ?, ?, ?)`, tableData))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer dataStmt.Close()
	nc := e.NConfigs
	for m := 0; m < e.NModes; m++ {
		for i := 0; i < nc; i++ {
			if _, err := dataStmt.ExecContext(ctx, m, i, e.X[m*nc+i], e.Y[m*nc+i]); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %d", m, i))
			}
		}
	}
	return nil
}

// Load reads an ensemble and its mode frequencies from dbPath.
func Load(dbPath string) (*anharm.Ensemble, []float64, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), bulkTimeout)
	defer cancel()

	w, err := loadModes(ctx, db)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	rho, err := loadConfigs(ctx, db)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}

	e := &anharm.Ensemble{
		NModes:   len(w),
		NConfigs: len(rho),
		X:        make([]float64, len(w)*len(rho)),
		Y:        make([]float64, len(w)*len(rho)),
		Rho:      rho,
	}
	if err := loadData(ctx, db, e); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	if err := e.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	return e, w, nil
}

func loadModes(ctx context.Context, db *sql.DB) ([]float64, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT m, w FROM %s ORDER BY m`, tableModes))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	w := make([]float64, 0)
	for rows.Next() {
		var m int
		var wm float64
		if err := rows.Scan(&m, &wm); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if m != len(w) {
			return nil, errors.Errorf("%d %d", m, len(w))
		}
		w = append(w, wm)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return w, nil
}

func loadConfigs(ctx context.Context, db *sql.DB) ([]float64, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT i, rho FROM %s ORDER BY i`, tableConfigs))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	rho := make([]float64, 0)
	for rows.Next() {
		var i int
		var r float64
		if err := rows.Scan(&i, &r); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if i != len(rho) {
			return nil, errors.Errorf("%d %d", i, len(rho))
		}
		rho = append(rho, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return rho, nil
}

func loadData(ctx context.Context, db *sql.DB, e *anharm.Ensemble) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT m, i, x, y FROM %s`, tableData))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		var m, i int
		var x, y float64
		if err := rows.Scan(&m, &i, &x, &y); err != nil {
			return errors.Wrap(err, "")
		}
		if m < 0 || m >= e.NModes || i < 0 || i >= e.NConfigs {
			return errors.Errorf("%d %d", m, i)
		}
		e.X[m*e.NConfigs+i] = x
		e.Y[m*e.NConfigs+i] = y
		seen++
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "")
	}
	if seen != e.NModes*e.NConfigs {
		return errors.Errorf("%d %d", seen, e.NModes*e.NConfigs)
	}
	return nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableModes),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableConfigs),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableData),
		fmt.Sprintf(`CREATE TABLE %s (m INTEGER PRIMARY KEY, w REAL) STRICT`, tableModes),
		fmt.Sprintf(`CREATE TABLE %s (i INTEGER PRIMARY KEY, rho REAL) STRICT`, tableConfigs),
		fmt.Sprintf(`CREATE TABLE %s (m INTEGER, i INTEGER, x REAL, y REAL, PRIMARY KEY (m, i)) STRICT`, tableData),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}
