package main

import (
	"fmt"
	"net/http"
)

// storageCostPerGB is the flat rate surfaced on the admin dashboard.
const storageCostPerGB = 0.1

// HandleAdminStats aggregates usage across all users.
// GET /admin/stats
func (a *App) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.DB.AdminStats()
	if err != nil {
		writeServerError(w, "admin stats", err)
		return
	}

	totalGB := float64(stats.TotalBytes) / (1024 * 1024 * 1024)
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"totalUsers":           stats.TotalUsers,
		"totalAudios":          stats.TotalAudios,
		"totalStorageBytes":    stats.TotalBytes,
		"totalStorageGB":       fmt.Sprintf("%.2f", totalGB),
		"storageCostUSD":       fmt.Sprintf("%.2f", totalGB*storageCostPerGB),
		"totalDurationSeconds": stats.TotalDuration,
		"avgDurationSeconds":   int64(stats.AvgDuration + 0.5),
		"formatStats":          stats.Formats,
		"categoryStats":        stats.Categories,
	})
}

// HandleAdminUsers lists every user with their journal activity, newest
// accounts first.
// GET /admin/users
func (a *App) HandleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.DB.ListUsers()
	if err != nil {
		writeServerError(w, "list users", err)
		return
	}

	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		activity, err := a.DB.UserActivity(u.ID)
		if err != nil {
			writeServerError(w, "user activity", err)
			return
		}
		out = append(out, map[string]interface{}{
			"id":                u.ID,
			"name":              u.Name,
			"email":             u.Email,
			"role":              u.Role,
			"isActive":          u.IsActive,
			"createdAt":         u.CreatedAt,
			"lastLogin":         u.LastLogin,
			"audioCount":        activity.AudioCount,
			"totalStorageBytes": activity.StorageBytes,
			"totalStorageMB":    fmt.Sprintf("%.2f", float64(activity.StorageBytes)/(1024*1024)),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(out),
		"data":    out,
	})
}
