package shaper

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// ChannelMappingEntry is one row of the ChannelMapping table.
type ChannelMappingEntry struct {
	Channel   int             `db:"Channel"`
	Strip     string          `db:"Strip"`
	Active    bool            `db:"Active"`
	DecayTime sql.NullFloat64 `db:"DecayTime"`
}

// LoadChannelTable overrides the channel table with the mapping valid for a
// run.
func LoadChannelTable(db *sqlx.DB, runNumber int, table *ChannelTable) error {
	query := "SELECT Channel, Strip, Active, DecayTime FROM ChannelMapping WHERE MinRun <= ? and MaxRun >= ? ORDER BY Channel"
	logger.Info(fmt.Sprintf("Reading channel mapping for run %d", runNumber), "database")

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	var entries []ChannelMappingEntry
	for rows.Next() {
		result := ChannelMappingEntry{}
		if err := rows.StructScan(&result); err != nil {
			return fmt.Errorf("error scanning DB row: %w", err)
		}
		entries = append(entries, result)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error reading DB rows: %w", err)
	}
	return applyChannelMapping(table, entries)
}

func applyChannelMapping(table *ChannelTable, entries []ChannelMappingEntry) error {
	for _, entry := range entries {
		accessor, err := table.Accessor(entry.Channel)
		if err != nil {
			return fmt.Errorf("invalid channel mapping: %w", err)
		}
		active := 0.0
		if entry.Active {
			active = 1
		}
		if err := accessor.SetParameter(ParamActive, active); err != nil {
			return err
		}
		if entry.DecayTime.Valid {
			if err := accessor.SetParameter(ParamDecayTime, entry.DecayTime.Float64); err != nil {
				return err
			}
		}
		if entry.Strip != "" {
			table[entry.Channel].Strip = entry.Strip
		}
	}
	return nil
}

// LoadReferenceTemperature returns the detector temperature in Celsius logged
// for a run.
func LoadReferenceTemperature(db *sqlx.DB, runNumber int) (float64, error) {
	var temperature float64
	err := db.Get(&temperature, "SELECT Temperature FROM RunConditions WHERE RunNumber = ?", runNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no conditions for run %d: %w", runNumber, err)
	}
	if err != nil {
		return 0, fmt.Errorf("error querying database: %w", err)
	}
	return temperature, nil
}

// LoadRunMetadata applies the channel mapping and the reference temperature
// of a run to every channel.
func LoadRunMetadata(db *sqlx.DB, runNumber int, table *ChannelTable) error {
	if err := LoadChannelTable(db, runNumber, table); err != nil {
		errMessage := fmt.Errorf("error getting channel mapping from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	temperature, err := LoadReferenceTemperature(db, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting run conditions from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	for ch := range table {
		if err := table[ch].SetParameter(ParamTemperature, temperature); err != nil {
			return err
		}
	}
	return nil
}
