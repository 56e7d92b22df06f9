package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Krimson/vitals-monitory/pkg/models"
	_ "modernc.org/sqlite"
)

// Текущая версия схемы. При несовместимом изменении поднимаем версию —
// старые таблицы пересоздаются (явная политика "clear on breaking change",
// миграции данных не делаем).
const schemaVersion = 1

// SQLiteStore — локальное файловое хранилище (бэкенд по умолчанию).
// Переживает перезапуски процесса без внешних сервисов.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore открывает базу в baseDir/vitals.db
func NewSQLiteStore(baseDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "vitals.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version != 0 && version != schemaVersion {
		// Несовместимая схема — пересоздаем таблицы
		if _, err := db.Exec(`DROP TABLE IF EXISTS vitals; DROP TABLE IF EXISTS thresholds`); err != nil {
			return fmt.Errorf("failed to drop outdated tables: %w", err)
		}
		version = 0
	}

	if version < schemaVersion {
		schema := `
		CREATE TABLE IF NOT EXISTS vitals (
		  patient_id    TEXT NOT NULL,
		  timestamp     INTEGER NOT NULL,
		  source        TEXT NOT NULL DEFAULT '',
		  hr            REAL,
		  temp          REAL,
		  spo2          REAL,
		  rr            REAL,
		  fall          INTEGER,
		  thresholds_id TEXT NOT NULL DEFAULT '',
		  PRIMARY KEY (patient_id, timestamp, source)
		);

		CREATE TABLE IF NOT EXISTS thresholds (
		  patient_id    TEXT NOT NULL,
		  thresholds_id TEXT NOT NULL,
		  min_hr        REAL,
		  max_hr        REAL,
		  min_temp      REAL,
		  max_temp      REAL,
		  min_spo2      REAL,
		  min_rr        REAL,
		  max_rr        REAL,
		  set_by_id     TEXT,
		  set_by_name   TEXT,
		  set_at        INTEGER NOT NULL DEFAULT 0,
		  PRIMARY KEY (patient_id, thresholds_id)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	return nil
}

// AppendSamples дозаписывает сэмплы; повторный (timestamp, source)
// замещает строку
func (s *SQLiteStore) AppendSamples(ctx context.Context, patientID string, samples []models.VitalSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vitals (patient_id, timestamp, source, hr, temp, spo2, rr, fall, thresholds_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id, timestamp, source) DO UPDATE SET
		  hr = excluded.hr, temp = excluded.temp, spo2 = excluded.spo2,
		  rr = excluded.rr, fall = excluded.fall, thresholds_id = excluded.thresholds_id`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx,
			patientID, sample.Timestamp, sample.Source,
			sample.HR, sample.Temp, sample.SpO2, sample.RR,
			boolToInt(sample.Fall), sample.ThresholdsID,
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertThresholds сохраняет наборы порогов, выигрывает последняя запись
func (s *SQLiteStore) UpsertThresholds(ctx context.Context, patientID string, sets []models.ThresholdSet) error {
	if len(sets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO thresholds (patient_id, thresholds_id, min_hr, max_hr, min_temp, max_temp, min_spo2, min_rr, max_rr, set_by_id, set_by_name, set_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id, thresholds_id) DO UPDATE SET
		  min_hr = excluded.min_hr, max_hr = excluded.max_hr,
		  min_temp = excluded.min_temp, max_temp = excluded.max_temp,
		  min_spo2 = excluded.min_spo2,
		  min_rr = excluded.min_rr, max_rr = excluded.max_rr,
		  set_by_id = excluded.set_by_id, set_by_name = excluded.set_by_name,
		  set_at = excluded.set_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, set := range sets {
		var setByID, setByName *string
		if set.SetBy != nil {
			setByID = &set.SetBy.ID
			setByName = &set.SetBy.FullName
		}

		if _, err := stmt.ExecContext(ctx,
			patientID, set.ThresholdsID,
			set.MinHR, set.MaxHR, set.MinTemp, set.MaxTemp,
			set.MinSpO2, set.MinRR, set.MaxRR,
			setByID, setByName, set.SetAt,
		); err != nil {
			return fmt.Errorf("failed to upsert threshold set: %w", err)
		}
	}

	return tx.Commit()
}

// ReadAll возвращает все сэмплы (по возрастанию времени) и пороги пациента
func (s *SQLiteStore) ReadAll(ctx context.Context, patientID string) ([]models.VitalSample, []models.ThresholdSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, source, hr, temp, spo2, rr, fall, thresholds_id
		FROM vitals WHERE patient_id = ?
		ORDER BY timestamp ASC`, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query vitals: %w", err)
	}
	defer rows.Close()

	var samples []models.VitalSample
	for rows.Next() {
		var sample models.VitalSample
		var fall *int64
		if err := rows.Scan(&sample.Timestamp, &sample.Source,
			&sample.HR, &sample.Temp, &sample.SpO2, &sample.RR,
			&fall, &sample.ThresholdsID); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Fall = intToBool(fall)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read vitals: %w", err)
	}

	thresholds, err := s.readThresholds(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}

	return samples, thresholds, nil
}

func (s *SQLiteStore) readThresholds(ctx context.Context, patientID string) ([]models.ThresholdSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thresholds_id, min_hr, max_hr, min_temp, max_temp, min_spo2, min_rr, max_rr, set_by_id, set_by_name, set_at
		FROM thresholds WHERE patient_id = ?`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer rows.Close()

	var sets []models.ThresholdSet
	for rows.Next() {
		var set models.ThresholdSet
		var setByID, setByName *string
		if err := rows.Scan(&set.ThresholdsID,
			&set.MinHR, &set.MaxHR, &set.MinTemp, &set.MaxTemp,
			&set.MinSpO2, &set.MinRR, &set.MaxRR,
			&setByID, &setByName, &set.SetAt); err != nil {
			return nil, fmt.Errorf("failed to scan threshold set: %w", err)
		}
		if setByID != nil {
			set.SetBy = &models.UserRef{ID: *setByID}
			if setByName != nil {
				set.SetBy.FullName = *setByName
			}
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thresholds: %w", err)
	}

	// Стабильный порядок для потребителей
	sort.Slice(sets, func(i, j int) bool { return sets[i].SetAt < sets[j].SetAt })
	return sets, nil
}

// Clear атомарно очищает обе таблицы пациента
func (s *SQLiteStore) Clear(ctx context.Context, patientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vitals WHERE patient_id = ?", patientID); err != nil {
		return fmt.Errorf("failed to clear vitals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM thresholds WHERE patient_id = ?", patientID); err != nil {
		return fmt.Errorf("failed to clear thresholds: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b *bool) *int64 {
	if b == nil {
		return nil
	}
	var v int64
	if *b {
		v = 1
	}
	return &v
}

func intToBool(i *int64) *bool {
	if i == nil {
		return nil
	}
	v := *i != 0
	return &v
}
