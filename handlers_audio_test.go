package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func uploadAudio(t *testing.T, h http.Handler, token, fileName string, fields map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", fileName)
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader("RIFF fake audio bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/audio/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestUploadAudio(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	rec, out := uploadAudio(t, h, token, "morning.mp3", map[string]string{
		"title":    "Morning thoughts",
		"category": CategoryDaily,
		"duration": "42.5",
		"tags":     "morning, coffee",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Audio uploaded successfully", out["message"])

	journal := out["data"].(map[string]interface{})
	require.Equal(t, "Morning thoughts", journal["title"])
	require.Equal(t, "mp3", journal["format"])
	require.Equal(t, 42.5, journal["duration"])
	require.Equal(t, []interface{}{"morning", "coffee"}, journal["tags"])
	require.NotEmpty(t, journal["fileUrl"])
	require.NotContains(t, journal, "storageKey")

	// the bytes landed on the media store
	mem := app.Media.(*MemoryMediaStore)
	require.Equal(t, 1, mem.Len())
}

func TestUploadDefaultsTitleAndCategory(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	rec, out := uploadAudio(t, h, token, "untitled.wav", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	journal := out["data"].(map[string]interface{})
	require.Equal(t, "untitled.wav", journal["title"])
	require.Equal(t, CategoryDaily, journal["category"])
	require.Equal(t, "wav", journal["format"])
}

func TestUploadCustomCategory(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	_, out := uploadAudio(t, h, token, "idea.mp3", map[string]string{
		"category":       CategoryCustom,
		"customCategory": "startup ideas",
	})
	journal := out["data"].(map[string]interface{})
	require.Equal(t, CategoryCustom, journal["category"])
	require.Equal(t, "startup ideas", journal["customCategory"])

	// customCategory is ignored outside the custom category
	_, out = uploadAudio(t, h, token, "other.mp3", map[string]string{
		"category":       CategoryBestMoments,
		"customCategory": "should be dropped",
	})
	journal = out["data"].(map[string]interface{})
	require.NotContains(t, journal, "customCategory")
}

func TestUploadWithoutFile(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "no file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/audio/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Please upload an audio file")
}

func TestListAudioFilters(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	uploadAudio(t, h, token, "a.mp3", map[string]string{"title": "Standup notes", "category": CategoryBestMoments})
	uploadAudio(t, h, token, "b.mp3", map[string]string{"title": "Dream log", "category": CategoryDaily})
	uploadAudio(t, h, token, "c.mp3", map[string]string{"title": "Weekly review", "category": CategoryBestMoments})

	rec, out := doJSON(t, h, "GET", "/audio", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(3), out["count"])

	_, out = doJSON(t, h, "GET", "/audio?category="+CategoryBestMoments, token, nil)
	require.Equal(t, float64(2), out["count"])

	_, out = doJSON(t, h, "GET", "/audio?search=dream", token, nil)
	require.Equal(t, float64(1), out["count"])
	first := out["data"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "Dream log", first["title"])

	_, out = doJSON(t, h, "GET", "/audio?sortBy=title&order=asc", token, nil)
	list := out["data"].([]interface{})
	require.Equal(t, "Dream log", list[0].(map[string]interface{})["title"])
	require.Equal(t, "Weekly review", list[2].(map[string]interface{})["title"])
}

func TestListAudioScopedToOwner(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	a := registerUser(t, h, "A", "a@x.com", "secret123")
	b := registerUser(t, h, "B", "b@x.com", "secret123")

	uploadAudio(t, h, a["accessToken"].(string), "mine.mp3", nil)

	_, out := doJSON(t, h, "GET", "/audio", b["accessToken"].(string), nil)
	require.Equal(t, float64(0), out["count"])
	require.NotNil(t, out["data"])
}

func TestGetUpdateAudio(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	_, out := uploadAudio(t, h, token, "a.mp3", map[string]string{"title": "Before"})
	id := int64(out["data"].(map[string]interface{})["id"].(float64))

	rec, out := doJSON(t, h, "GET", fmt.Sprintf("/audio/%d", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Before", out["data"].(map[string]interface{})["title"])

	rec, out = doJSON(t, h, "PUT", fmt.Sprintf("/audio/%d", id), token, map[string]interface{}{
		"title": "After",
		"tags":  []string{"edited"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := out["data"].(map[string]interface{})
	require.Equal(t, "After", updated["title"])
	require.Equal(t, []interface{}{"edited"}, updated["tags"])

	rec, _ = doJSON(t, h, "GET", "/audio/9999", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJournalsArePrivate(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	a := registerUser(t, h, "A", "a@x.com", "secret123")
	b := registerUser(t, h, "B", "b@x.com", "secret123")

	_, out := uploadAudio(t, h, a["accessToken"].(string), "mine.mp3", nil)
	id := int64(out["data"].(map[string]interface{})["id"].(float64))

	// another user's token sees 404, not 403, so ids do not leak
	rec, _ := doJSON(t, h, "GET", fmt.Sprintf("/audio/%d", id), b["accessToken"].(string), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, h, "DELETE", fmt.Sprintf("/audio/%d", id), b["accessToken"].(string), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAudio(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	_, out := uploadAudio(t, h, token, "gone.mp3", nil)
	id := int64(out["data"].(map[string]interface{})["id"].(float64))

	mem := app.Media.(*MemoryMediaStore)
	require.Equal(t, 1, mem.Len())

	rec, _ := doJSON(t, h, "DELETE", fmt.Sprintf("/audio/%d", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// media object removed, record hidden from reads
	require.Equal(t, 0, mem.Len())
	rec, _ = doJSON(t, h, "GET", fmt.Sprintf("/audio/%d", id), token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, listOut := doJSON(t, h, "GET", "/audio", token, nil)
	require.Equal(t, float64(0), listOut["count"])

	// deleting twice reports not found
	rec, _ = doJSON(t, h, "DELETE", fmt.Sprintf("/audio/%d", id), token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadAudio(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	_, out := uploadAudio(t, h, token, "a.mp3", nil)
	id := int64(out["data"].(map[string]interface{})["id"].(float64))

	rec, out := doJSON(t, h, "GET", fmt.Sprintf("/audio/%d/download", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	link := out["data"].(map[string]interface{})
	require.Contains(t, link["url"], "memory://audio/")
	require.Equal(t, float64(900), link["expiresIn"])

	rec, _ = doJSON(t, h, "GET", "/audio/9999/download", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserStatsExcludeDeleted(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	data := registerUser(t, h, "A", "a@x.com", "secret123")
	token := data["accessToken"].(string)

	uploadAudio(t, h, token, "a.mp3", map[string]string{"duration": "10", "category": CategoryBestMoments})
	uploadAudio(t, h, token, "b.mp3", map[string]string{"duration": "30", "category": CategoryDaily})
	_, out := uploadAudio(t, h, token, "c.mp3", map[string]string{"duration": "100"})
	id := int64(out["data"].(map[string]interface{})["id"].(float64))
	doJSON(t, h, "DELETE", fmt.Sprintf("/audio/%d", id), token, nil)

	rec, out := doJSON(t, h, "GET", "/audio/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := out["data"].(map[string]interface{})
	require.Equal(t, float64(2), stats["totalAudios"])
	require.Equal(t, float64(40), stats["totalDuration"])
	require.Equal(t, float64(20), stats["avgDuration"])
	require.Len(t, stats["categories"], 2)
}

func TestAudioRoutesRequireAuth(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()

	for _, tc := range []struct{ method, path string }{
		{"GET", "/audio"},
		{"POST", "/audio/upload"},
		{"GET", "/audio/stats"},
		{"GET", "/audio/1"},
		{"PUT", "/audio/1"},
		{"DELETE", "/audio/1"},
	} {
		rec, _ := doJSON(t, h, tc.method, tc.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}
