package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func (p *PostgresDB) CreateUser(name, email, passwordHash, role string) (*User, error) {
	var u User
	err := p.db.QueryRow(`INSERT INTO users(name,email,password,role,created_at) VALUES($1,$2,$3,$4,now())
		RETURNING id, created_at`, name, email, passwordHash, role).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	u.Name, u.Email, u.Password, u.Role, u.IsActive = name, email, passwordHash, role, true
	return &u, nil
}

const userColumns = `id,name,email,password,role,is_active,last_login,created_at`

func scanPostgresUser(scan func(...interface{}) error) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	if err := scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.IsActive, &lastLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	row := p.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanPostgresUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	row := p.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanPostgresUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (p *PostgresDB) TouchLastLogin(id int64) error {
	_, err := p.db.Exec(`UPDATE users SET last_login = now() WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) SetUserActive(id int64, active bool) error {
	_, err := p.db.Exec(`UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	return err
}

func (p *PostgresDB) ListUsers() ([]*User, error) {
	rows, err := p.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanPostgresUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresDB) CountActiveUsers() (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM users WHERE is_active`).Scan(&n)
	return n, err
}

func (p *PostgresDB) CreateJournal(j *AudioJournal) (*AudioJournal, error) {
	cp := *j
	if cp.RecordedAt.IsZero() {
		cp.RecordedAt = time.Now()
	}
	err := p.db.QueryRow(`INSERT INTO audio_journals
		(user_id,title,file_url,file_name,file_size,format,duration,category,custom_category,tags,storage_key,transcription,summary,is_transcribed,recorded_at,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
		RETURNING id, created_at, updated_at`,
		cp.UserID, cp.Title, cp.FileURL, cp.FileName, cp.FileSize, cp.Format, cp.Duration, cp.Category,
		cp.CustomCategory, pq.Array(cp.Tags), cp.StorageKey, cp.Transcription, cp.Summary, cp.IsTranscribed,
		cp.RecordedAt).Scan(&cp.ID, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func scanPostgresJournal(scan func(...interface{}) error) (*AudioJournal, error) {
	var j AudioJournal
	var deleted sql.NullTime
	var tags pq.StringArray
	err := scan(&j.ID, &j.UserID, &j.Title, &j.FileURL, &j.FileName, &j.FileSize, &j.Format, &j.Duration,
		&j.Category, &j.CustomCategory, &tags, &j.StorageKey, &j.Transcription, &j.Summary, &j.IsTranscribed,
		&j.RecordedAt, &j.IsDeleted, &deleted, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Tags = []string(tags)
	if deleted.Valid {
		j.DeletedAt = &deleted.Time
	}
	return &j, nil
}

func (p *PostgresDB) GetJournal(id, userID int64) (*AudioJournal, error) {
	row := p.db.QueryRow(`SELECT `+journalColumns+` FROM audio_journals WHERE id = $1 AND user_id = $2 AND NOT is_deleted`, id, userID)
	j, err := scanPostgresJournal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (p *PostgresDB) ListJournals(userID int64, f JournalFilter) ([]*AudioJournal, error) {
	query := `SELECT ` + journalColumns + ` FROM audio_journals WHERE user_id = $1 AND NOT is_deleted`
	args := []interface{}{userID}
	if f.Category != "" && f.Category != "all" {
		args = append(args, f.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		query += fmt.Sprintf(` AND lower(title) LIKE $%d`, len(args))
	}
	query += ` ORDER BY ` + orderClause(f)
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AudioJournal
	for rows.Next() {
		j, err := scanPostgresJournal(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateJournal(j *AudioJournal) error {
	_, err := p.db.Exec(`UPDATE audio_journals SET title = $1, category = $2, custom_category = $3, tags = $4, updated_at = now()
		WHERE id = $5 AND NOT is_deleted`,
		j.Title, j.Category, j.CustomCategory, pq.Array(j.Tags), j.ID)
	return err
}

func (p *PostgresDB) SoftDeleteJournal(id, userID int64) error {
	_, err := p.db.Exec(`UPDATE audio_journals SET is_deleted = true, deleted_at = now(), updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID)
	return err
}

func (p *PostgresDB) UserStats(userID int64) (*UserStats, error) {
	stats := &UserStats{Categories: []CategoryCount{}}
	err := p.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size),0), COALESCE(SUM(duration),0), COALESCE(AVG(duration),0)
		FROM audio_journals WHERE user_id = $1 AND NOT is_deleted`, userID).
		Scan(&stats.TotalAudios, &stats.TotalStorage, &stats.TotalDuration, &stats.AvgDuration)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(`SELECT category, COUNT(*) FROM audio_journals WHERE user_id = $1 AND NOT is_deleted GROUP BY category ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		stats.Categories = append(stats.Categories, c)
	}
	return stats, rows.Err()
}

func (p *PostgresDB) AdminStats() (*AdminStats, error) {
	stats := &AdminStats{Formats: []FormatStat{}, Categories: []CategoryCount{}}
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM users WHERE is_active`).Scan(&stats.TotalUsers); err != nil {
		return nil, err
	}
	err := p.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size),0), COALESCE(SUM(duration),0), COALESCE(AVG(duration),0)
		FROM audio_journals WHERE NOT is_deleted`).
		Scan(&stats.TotalAudios, &stats.TotalBytes, &stats.TotalDuration, &stats.AvgDuration)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(`SELECT format, COUNT(*), COALESCE(SUM(file_size),0) FROM audio_journals WHERE NOT is_deleted GROUP BY format ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f FormatStat
		if err := rows.Scan(&f.Format, &f.Count, &f.TotalSize); err != nil {
			return nil, err
		}
		stats.Formats = append(stats.Formats, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	crows, err := p.db.Query(`SELECT category, COUNT(*) FROM audio_journals WHERE NOT is_deleted GROUP BY category ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c CategoryCount
		if err := crows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		stats.Categories = append(stats.Categories, c)
	}
	return stats, crows.Err()
}

func (p *PostgresDB) UserActivity(userID int64) (*UserActivity, error) {
	act := &UserActivity{}
	err := p.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size),0) FROM audio_journals WHERE user_id = $1 AND NOT is_deleted`, userID).
		Scan(&act.AudioCount, &act.StorageBytes)
	return act, err
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
