package main

import (
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// maxUploadBytes caps the multipart form kept in memory before spilling to
// disk.
const maxUploadBytes = 32 << 20

// downloadLinkTTL bounds how long a presigned download link stays valid.
const downloadLinkTTL = 15 * time.Minute

// audioFormat derives the stored format from the file name, falling back to
// the MIME subtype.
func audioFormat(fileName, contentType string) string {
	if ext := strings.TrimPrefix(filepath.Ext(fileName), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if parts := strings.SplitN(contentType, "/", 2); len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return "bin"
}

// parseTags accepts either a JSON array string or a comma-separated list.
func parseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err == nil {
		return tags
	}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// HandleUploadAudio stores the audio bytes on the media host and records the
// journal metadata. The bytes are never inspected beyond size and type.
func (a *App) HandleUploadAudio(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Please upload an audio file")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Please upload an audio file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}

	key := storageKey()
	fileURL, err := a.Media.Put(r.Context(), key, contentType, file)
	if err != nil {
		writeServerError(w, "upload audio", err)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	if len(title) > 200 {
		title = title[:200]
	}
	category := r.FormValue("category")
	if category == "" {
		category = CategoryDaily
	}
	customCategory := ""
	if category == CategoryCustom {
		customCategory = r.FormValue("customCategory")
	}
	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)

	journal, err := a.DB.CreateJournal(&AudioJournal{
		UserID:         user.ID,
		Title:          title,
		FileURL:        fileURL,
		FileName:       header.Filename,
		FileSize:       header.Size,
		Format:         audioFormat(header.Filename, contentType),
		Duration:       duration,
		Category:       category,
		CustomCategory: customCategory,
		Tags:           parseTags(r.FormValue("tags")),
		StorageKey:     key,
	})
	if err != nil {
		writeServerError(w, "create journal", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Audio uploaded successfully",
		"data":    journal,
	})
}

func (a *App) HandleListAudio(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	q := r.URL.Query()
	filter := JournalFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sortBy"),
		Order:    q.Get("order"),
	}
	journals, err := a.DB.ListJournals(user.ID, filter)
	if err != nil {
		writeServerError(w, "list journals", err)
		return
	}
	if journals == nil {
		journals = []*AudioJournal{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(journals),
		"data":    journals,
	})
}

func (a *App) HandleGetAudio(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	journal, err := a.journalByVar(r, user.ID)
	if err != nil {
		writeServerError(w, "get journal", err)
		return
	}
	if journal == nil {
		writeError(w, http.StatusNotFound, "Audio journal not found")
		return
	}
	writeSuccess(w, http.StatusOK, journal)
}

func (a *App) HandleUpdateAudio(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	journal, err := a.journalByVar(r, user.ID)
	if err != nil {
		writeServerError(w, "get journal", err)
		return
	}
	if journal == nil {
		writeError(w, http.StatusNotFound, "Audio journal not found")
		return
	}

	var in struct {
		Title          string   `json:"title"`
		Category       string   `json:"category"`
		CustomCategory string   `json:"customCategory"`
		Tags           []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if in.Title != "" {
		journal.Title = in.Title
	}
	if in.Category != "" {
		journal.Category = in.Category
	}
	if in.Category == CategoryCustom && in.CustomCategory != "" {
		journal.CustomCategory = in.CustomCategory
	}
	if in.Tags != nil {
		journal.Tags = in.Tags
	}

	if err := a.DB.UpdateJournal(journal); err != nil {
		writeServerError(w, "update journal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Audio journal updated successfully",
		"data":    journal,
	})
}

// HandleDeleteAudio removes the object from the media host, then soft
// deletes the record. The row survives for aggregation history.
func (a *App) HandleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	journal, err := a.journalByVar(r, user.ID)
	if err != nil {
		writeServerError(w, "get journal", err)
		return
	}
	if journal == nil {
		writeError(w, http.StatusNotFound, "Audio journal not found")
		return
	}

	if journal.StorageKey != "" {
		if err := a.Media.Delete(r.Context(), journal.StorageKey); err != nil {
			writeServerError(w, "delete media object", err)
			return
		}
	}

	if err := a.DB.SoftDeleteJournal(journal.ID, user.ID); err != nil {
		writeServerError(w, "soft delete journal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Audio journal deleted successfully",
	})
}

// HandleDownloadAudio hands out a short-lived direct link to the audio
// bytes. The stored file URL may be behind a private bucket; this one is
// always fetchable until it expires.
func (a *App) HandleDownloadAudio(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	journal, err := a.journalByVar(r, user.ID)
	if err != nil {
		writeServerError(w, "get journal", err)
		return
	}
	if journal == nil || journal.StorageKey == "" {
		writeError(w, http.StatusNotFound, "Audio journal not found")
		return
	}

	url, err := a.Media.PresignedGetURL(r.Context(), journal.StorageKey, downloadLinkTTL)
	if err != nil {
		writeServerError(w, "presign download", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"url":       url,
		"expiresIn": int(downloadLinkTTL.Seconds()),
	})
}

func (a *App) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	stats, err := a.DB.UserStats(user.ID)
	if err != nil {
		writeServerError(w, "user stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (a *App) journalByVar(r *http.Request, userID int64) (*AudioJournal, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, nil
	}
	return a.DB.GetJournal(id, userID)
}
