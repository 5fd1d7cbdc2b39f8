package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/annel0/plotmines/internal/mine"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// SQLMineStore хранит шахты в таблице plot_mines.
// Поддерживаются драйверы "mysql" (MariaDB/MySQL) и "sqlite".
type SQLMineStore struct {
	db     *sql.DB
	driver string
}

// NewSQLMineStore подключается к базе и создает таблицу, если её нет.
//
// Параметры:
//
//	driver - "mysql" или "sqlite"
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname или путь к файлу)
func NewSQLMineStore(driver, dsn string) (*SQLMineStore, error) {
	switch driver {
	case "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("неподдерживаемый SQL драйвер: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к %s: %w", driver, err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite не любит параллельную запись
		db.SetMaxOpenConns(1)
	}

	store := &SQLMineStore{db: db, driver: driver}

	if err := store.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return store, nil
}

// createTable создает таблицу plot_mines, если она не существует.
func (s *SQLMineStore) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS plot_mines (
			id           VARCHAR(36)  PRIMARY KEY,
			owner_id     VARCHAR(36)  NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			data         TEXT         NOT NULL
		)
	`

	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы plot_mines: %w", err)
	}

	return nil
}

// Load читает все строки таблицы
func (s *SQLMineStore) Load(ctx context.Context) ([]mine.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM plot_mines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения шахт: %w", err)
	}
	defer rows.Close()

	var records []mine.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки шахты: %w", err)
		}
		r, err := decodeRecord(id, []byte(data))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка перебора шахт: %w", err)
	}

	return records, nil
}

// SaveAll в одной транзакции очищает таблицу и вставляет набор заново
func (s *SQLMineStore) SaveAll(ctx context.Context, records []mine.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plot_mines`); err != nil {
		return fmt.Errorf("ошибка очистки plot_mines: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO plot_mines (id, owner_id, display_name, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := encodeRecord(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Owner.ID, r.DisplayName, string(data)); err != nil {
			return fmt.Errorf("ошибка сохранения шахты %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой данных.
func (s *SQLMineStore) Close() error {
	return s.db.Close()
}
