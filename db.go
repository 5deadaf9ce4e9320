package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrEmailExists is returned by CreateUser when the email is already taken.
// The store's uniqueness constraint serializes concurrent registrations; the
// losing request surfaces this error.
var ErrEmailExists = errors.New("email already exists")

// DB interface for database operations
type DB interface {
	Init() error
	// User operations
	CreateUser(name, email, passwordHash, role string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id int64) (*User, error)
	TouchLastLogin(id int64) error
	SetUserActive(id int64, active bool) error
	ListUsers() ([]*User, error)
	CountActiveUsers() (int64, error)
	// Journal operations
	CreateJournal(j *AudioJournal) (*AudioJournal, error)
	GetJournal(id, userID int64) (*AudioJournal, error)
	ListJournals(userID int64, f JournalFilter) ([]*AudioJournal, error)
	UpdateJournal(j *AudioJournal) error
	SoftDeleteJournal(id, userID int64) error
	// Aggregations
	UserStats(userID int64) (*UserStats, error)
	AdminStats() (*AdminStats, error)
	UserActivity(userID int64) (*UserActivity, error)
}

// sortColumns whitelists the sortable journal fields; anything else falls
// back to createdAt.
var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"recordedAt": "recorded_at",
	"title":      "title",
	"duration":   "duration",
	"fileSize":   "file_size",
}

func orderClause(f JournalFilter) string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		dir = "ASC"
	}
	return col + " " + dir
}

// Memory DB
type MemDB struct {
	mu       sync.Mutex
	users    map[string]*User
	journals map[int64]*AudioJournal
	userSeq  int64
	jSeq     int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{users: map[string]*User{}, journals: map[int64]*AudioJournal{}, userSeq: 1, jSeq: 1}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(name, email, passwordHash, role string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, ErrEmailExists
	}
	u := &User{
		ID:        m.userSeq,
		Name:      name,
		Email:     email,
		Password:  passwordHash,
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	m.userSeq++
	m.users[email] = u
	return u, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MemDB) TouchLastLogin(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			now := time.Now()
			u.LastLogin = &now
			return nil
		}
	}
	return nil
}

func (m *MemDB) SetUserActive(id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.IsActive = active
			return nil
		}
	}
	return nil
}

func (m *MemDB) ListUsers() ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (m *MemDB) CountActiveUsers() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *MemDB) CreateJournal(j *AudioJournal) (*AudioJournal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	cp.ID = m.jSeq
	m.jSeq++
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.RecordedAt.IsZero() {
		cp.RecordedAt = now
	}
	m.journals[cp.ID] = &cp
	return &cp, nil
}

func (m *MemDB) GetJournal(id, userID int64) (*AudioJournal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.journals[id]
	if !ok || j.UserID != userID || j.IsDeleted {
		return nil, nil
	}
	return j, nil
}

func (m *MemDB) ListJournals(userID int64, f JournalFilter) ([]*AudioJournal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AudioJournal
	for _, j := range m.journals {
		if j.UserID != userID || j.IsDeleted {
			continue
		}
		if f.Category != "" && f.Category != "all" && j.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(j.Title), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, j)
	}
	desc := !strings.EqualFold(f.Order, "asc")
	less := func(i, k int) bool {
		a, b := out[i], out[k]
		switch f.SortBy {
		case "title":
			return a.Title < b.Title
		case "duration":
			return a.Duration < b.Duration
		case "fileSize":
			return a.FileSize < b.FileSize
		case "recordedAt":
			return a.RecordedAt.Before(b.RecordedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if desc {
			return less(k, i)
		}
		return less(i, k)
	})
	return out, nil
}

func (m *MemDB) UpdateJournal(j *AudioJournal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.journals[j.ID]
	if !ok || cur.IsDeleted {
		return nil
	}
	cp := *j
	cp.UpdatedAt = time.Now()
	m.journals[j.ID] = &cp
	return nil
}

func (m *MemDB) SoftDeleteJournal(id, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.journals[id]
	if !ok || j.UserID != userID {
		return nil
	}
	now := time.Now()
	j.IsDeleted = true
	j.DeletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *MemDB) UserStats(userID int64) (*UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &UserStats{Categories: []CategoryCount{}}
	counts := map[string]int64{}
	for _, j := range m.journals {
		if j.UserID != userID || j.IsDeleted {
			continue
		}
		stats.TotalAudios++
		stats.TotalStorage += j.FileSize
		stats.TotalDuration += j.Duration
		counts[j.Category]++
	}
	if stats.TotalAudios > 0 {
		stats.AvgDuration = stats.TotalDuration / float64(stats.TotalAudios)
	}
	stats.Categories = sortedCounts(counts)
	return stats, nil
}

func (m *MemDB) AdminStats() (*AdminStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &AdminStats{Formats: []FormatStat{}, Categories: []CategoryCount{}}
	for _, u := range m.users {
		if u.IsActive {
			stats.TotalUsers++
		}
	}
	catCounts := map[string]int64{}
	fmtCounts := map[string]*FormatStat{}
	for _, j := range m.journals {
		if j.IsDeleted {
			continue
		}
		stats.TotalAudios++
		stats.TotalBytes += j.FileSize
		stats.TotalDuration += j.Duration
		catCounts[j.Category]++
		fs, ok := fmtCounts[j.Format]
		if !ok {
			fs = &FormatStat{Format: j.Format}
			fmtCounts[j.Format] = fs
		}
		fs.Count++
		fs.TotalSize += j.FileSize
	}
	if stats.TotalAudios > 0 {
		stats.AvgDuration = stats.TotalDuration / float64(stats.TotalAudios)
	}
	stats.Categories = sortedCounts(catCounts)
	for _, fs := range fmtCounts {
		stats.Formats = append(stats.Formats, *fs)
	}
	sort.Slice(stats.Formats, func(i, k int) bool { return stats.Formats[i].Count > stats.Formats[k].Count })
	return stats, nil
}

func (m *MemDB) UserActivity(userID int64) (*UserActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	act := &UserActivity{}
	for _, j := range m.journals {
		if j.UserID != userID || j.IsDeleted {
			continue
		}
		act.AudioCount++
		act.StorageBytes += j.FileSize
	}
	return act, nil
}

func sortedCounts(counts map[string]int64) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Count > out[k].Count })
	return out
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection so :memory: databases keep their schema
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			is_active INTEGER NOT NULL DEFAULT 1,
			last_login TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audio_journals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			format TEXT NOT NULL,
			duration REAL NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT 'daily',
			custom_category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			storage_key TEXT NOT NULL DEFAULT '',
			transcription TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			is_transcribed INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journals_user ON audio_journals(user_id, is_deleted, created_at);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func sqliteTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseSqliteTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func (s *SQLiteDB) CreateUser(name, email, passwordHash, role string) (*User, error) {
	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO users(name,email,password,role,created_at) VALUES(?,?,?,?,?)`,
		name, email, passwordHash, role, sqliteTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Name: name, Email: email, Password: passwordHash, Role: role, IsActive: true, CreatedAt: now}, nil
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	var lastLogin sql.NullString
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &active, &lastLogin, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.IsActive = active != 0
	if lastLogin.Valid {
		t := parseSqliteTime(lastLogin.String)
		u.LastLogin = &t
	}
	u.CreatedAt = parseSqliteTime(created)
	return &u, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,name,email,password,role,is_active,last_login,created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,name,email,password,role,is_active,last_login,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) TouchLastLogin(id int64) error {
	_, err := s.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, sqliteTime(time.Now()), id)
	return err
}

func (s *SQLiteDB) SetUserActive(id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.Exec(`UPDATE users SET is_active = ? WHERE id = ?`, v, id)
	return err
}

func (s *SQLiteDB) ListUsers() ([]*User, error) {
	rows, err := s.db.Query(`SELECT id,name,email,password,role,is_active,last_login,created_at FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		var u User
		var active int
		var lastLogin sql.NullString
		var created string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &active, &lastLogin, &created); err != nil {
			return nil, err
		}
		u.IsActive = active != 0
		if lastLogin.Valid {
			t := parseSqliteTime(lastLogin.String)
			u.LastLogin = &t
		}
		u.CreatedAt = parseSqliteTime(created)
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *SQLiteDB) CountActiveUsers() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE is_active = 1`).Scan(&n)
	return n, err
}

func (s *SQLiteDB) CreateJournal(j *AudioJournal) (*AudioJournal, error) {
	now := time.Now()
	if j.RecordedAt.IsZero() {
		j.RecordedAt = now
	}
	tags, err := json.Marshal(j.Tags)
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec(`INSERT INTO audio_journals
		(user_id,title,file_url,file_name,file_size,format,duration,category,custom_category,tags,storage_key,transcription,summary,is_transcribed,recorded_at,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.UserID, j.Title, j.FileURL, j.FileName, j.FileSize, j.Format, j.Duration, j.Category, j.CustomCategory,
		string(tags), j.StorageKey, j.Transcription, j.Summary, boolToInt(j.IsTranscribed),
		sqliteTime(j.RecordedAt), sqliteTime(now), sqliteTime(now))
	if err != nil {
		return nil, err
	}
	cp := *j
	cp.ID, _ = res.LastInsertId()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	return &cp, nil
}

const journalColumns = `id,user_id,title,file_url,file_name,file_size,format,duration,category,custom_category,tags,storage_key,transcription,summary,is_transcribed,recorded_at,is_deleted,deleted_at,created_at,updated_at`

func scanSqliteJournal(scan func(...interface{}) error) (*AudioJournal, error) {
	var j AudioJournal
	var tags, recorded, created, updated string
	var isTranscribed, isDeleted int
	var deleted sql.NullString
	err := scan(&j.ID, &j.UserID, &j.Title, &j.FileURL, &j.FileName, &j.FileSize, &j.Format, &j.Duration,
		&j.Category, &j.CustomCategory, &tags, &j.StorageKey, &j.Transcription, &j.Summary, &isTranscribed,
		&recorded, &isDeleted, &deleted, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &j.Tags); err != nil {
		j.Tags = nil
	}
	j.IsTranscribed = isTranscribed != 0
	j.IsDeleted = isDeleted != 0
	if deleted.Valid {
		t := parseSqliteTime(deleted.String)
		j.DeletedAt = &t
	}
	j.RecordedAt = parseSqliteTime(recorded)
	j.CreatedAt = parseSqliteTime(created)
	j.UpdatedAt = parseSqliteTime(updated)
	return &j, nil
}

func (s *SQLiteDB) GetJournal(id, userID int64) (*AudioJournal, error) {
	row := s.db.QueryRow(`SELECT `+journalColumns+` FROM audio_journals WHERE id = ? AND user_id = ? AND is_deleted = 0`, id, userID)
	j, err := scanSqliteJournal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (s *SQLiteDB) ListJournals(userID int64, f JournalFilter) ([]*AudioJournal, error) {
	query := `SELECT ` + journalColumns + ` FROM audio_journals WHERE user_id = ? AND is_deleted = 0`
	args := []interface{}{userID}
	if f.Category != "" && f.Category != "all" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Search != "" {
		query += ` AND lower(title) LIKE ?`
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	query += ` ORDER BY ` + orderClause(f)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AudioJournal
	for rows.Next() {
		j, err := scanSqliteJournal(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateJournal(j *AudioJournal) error {
	tags, err := json.Marshal(j.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE audio_journals SET title = ?, category = ?, custom_category = ?, tags = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		j.Title, j.Category, j.CustomCategory, string(tags), sqliteTime(time.Now()), j.ID)
	return err
}

func (s *SQLiteDB) SoftDeleteJournal(id, userID int64) error {
	now := sqliteTime(time.Now())
	_, err := s.db.Exec(`UPDATE audio_journals SET is_deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`, now, now, id, userID)
	return err
}

func (s *SQLiteDB) UserStats(userID int64) (*UserStats, error) {
	stats := &UserStats{Categories: []CategoryCount{}}
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size),0), COALESCE(SUM(duration),0), COALESCE(AVG(duration),0)
		FROM audio_journals WHERE user_id = ? AND is_deleted = 0`, userID).
		Scan(&stats.TotalAudios, &stats.TotalStorage, &stats.TotalDuration, &stats.AvgDuration)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT category, COUNT(*) FROM audio_journals WHERE user_id = ? AND is_deleted = 0 GROUP BY category ORDER BY COUNT(*) DESC`, userID)
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

func (s *SQLiteDB) AdminStats() (*AdminStats, error) {
	stats := &AdminStats{Formats: []FormatStat{}, Categories: []CategoryCount{}}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE is_active = 1`).Scan(&stats.TotalUsers); err != nil {
		return nil, err
	}
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size),0), COALESCE(SUM(duration),0), COALESCE(AVG(duration),0)
		FROM audio_journals WHERE is_deleted = 0`).
		Scan(&stats.TotalAudios, &stats.TotalBytes, &stats.TotalDuration, &stats.AvgDuration)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT format, COUNT(*), COALESCE(SUM(file_size),0) FROM audio_journals WHERE is_deleted = 0 GROUP BY format ORDER BY COUNT(*) DESC`)
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
	crows, err := s.db.Query(`SELECT category, COUNT(*) FROM audio_journals WHERE is_deleted = 0 GROUP BY category ORDER BY COUNT(*) DESC`)
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

func (s *SQLiteDB) UserActivity(userID int64) (*UserActivity, error) {
	act := &UserActivity{}
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size),0) FROM audio_journals WHERE user_id = ? AND is_deleted = 0`, userID).
		Scan(&act.AudioCount, &act.StorageBytes)
	return act, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
