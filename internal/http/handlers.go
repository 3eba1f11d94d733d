package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"duahabit/internal/auth"
	"duahabit/internal/models"
	"duahabit/internal/practice"
	"duahabit/internal/progression"
	"duahabit/internal/service"
	"duahabit/internal/storage"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateMeRequest struct {
	DisplayName string `json:"display_name"`
}

type customHabitRequest struct {
	DuaID    string `json:"dua_id"`
	Slot     string `json:"slot"`
	Position *int   `json:"position"`
}

type completeRequest struct {
	Date string `json:"date"`
}

type entityResponse struct {
	ID string `json:"id"`
}

type authResponse struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

type profileResponse struct {
	models.UserProfile
	XPToNextLevel int `json:"xp_to_next_level"`
}

type journeyItem struct {
	models.Journey
	Subscribed bool `json:"subscribed"`
	DuaCount   int  `json:"dua_count"`
	DailyXP    int  `json:"daily_xp"`
}

type journeyDetail struct {
	journeyItem
	Morning []models.JourneyEntry `json:"morning"`
	Anytime []models.JourneyEntry `json:"anytime"`
	Evening []models.JourneyEntry `json:"evening"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email and password required")
		return
	}
	at := strings.Index(req.Email, "@")
	if at < 1 || at == len(req.Email)-1 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid email")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Password must be at least 8 characters")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Email[:at]
	}
	user, tokens, err := a.Service.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeError(w, http.StatusConflict, "CONFLICT", "Email already registered")
			return
		}
		writeStoreError(w, err, "User not found", "Failed to register")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, tokens, err := a.Service.Login(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
			return
		}
		writeStoreError(w, err, "User not found", "Failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Refresh token required")
		return
	}
	tokens, err := a.Service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid refresh token")
			return
		}
		writeStoreError(w, err, "Session not found", "Failed to refresh")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	day, ok := a.queryDay(w, r)
	if !ok {
		return
	}
	profile, err := a.Engine.Profile(r.Context(), userID, day)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserProfile: profile, XPToNextLevel: progression.XPToNextLevel(profile.TotalXP)})
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req updateMeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Display name required")
		return
	}
	profile, err := a.Store.UpdateDisplayName(r.Context(), userID, name)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserProfile: profile, XPToNextLevel: progression.XPToNextLevel(profile.TotalXP)})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.Store.ListCategories(r.Context())
	if err != nil {
		writeStoreError(w, err, "Categories not found", "Failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleListDuas(w http.ResponseWriter, r *http.Request) {
	duas, err := a.Store.ListDuas(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeStoreError(w, err, "Category not found", "Failed to list duas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duas": duas})
}

func (a *API) handleGetDua(w http.ResponseWriter, r *http.Request) {
	dua, err := a.Store.GetDua(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "Dua not found", "Failed to load dua")
		return
	}
	writeJSON(w, http.StatusOK, dua)
}

func (a *API) handleListJourneys(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	journeys, err := a.Store.ListJourneys(r.Context())
	if err != nil {
		writeStoreError(w, err, "Journeys not found", "Failed to list journeys")
		return
	}
	subs, err := a.Store.ListSubscribedJourneys(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to list journeys")
		return
	}
	subscribed := make(map[string]bool, len(subs))
	for _, j := range subs {
		subscribed[j.ID] = true
	}
	ids := make([]string, 0, len(journeys))
	for _, j := range journeys {
		ids = append(ids, j.ID)
	}
	entries, err := a.Store.ListJourneyEntries(r.Context(), ids)
	if err != nil {
		writeStoreError(w, err, "Journeys not found", "Failed to list journeys")
		return
	}
	count := make(map[string]int)
	xp := make(map[string]int)
	for _, e := range entries {
		count[e.JourneyID]++
		xp[e.JourneyID] += e.Dua.XP
	}
	items := make([]journeyItem, 0, len(journeys))
	for _, j := range journeys {
		items = append(items, journeyItem{
			Journey:    j,
			Subscribed: subscribed[j.ID],
			DuaCount:   count[j.ID],
			DailyXP:    xp[j.ID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"journeys": items})
}

func (a *API) handleGetJourney(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	journey, err := a.resolveJourney(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "Journey not found", "Failed to load journey")
		return
	}
	entries, err := a.Store.ListJourneyEntries(r.Context(), []string{journey.ID})
	if err != nil {
		writeStoreError(w, err, "Journey not found", "Failed to load journey")
		return
	}
	subs, err := a.Store.ListSubscribedJourneys(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to load journey")
		return
	}
	detail := journeyDetail{
		journeyItem: journeyItem{Journey: journey},
		Morning:     []models.JourneyEntry{},
		Anytime:     []models.JourneyEntry{},
		Evening:     []models.JourneyEntry{},
	}
	for _, s := range subs {
		if s.ID == journey.ID {
			detail.Subscribed = true
		}
	}
	for _, e := range entries {
		detail.DuaCount++
		detail.DailyXP += e.Dua.XP
		switch e.Slot {
		case models.SlotMorning:
			detail.Morning = append(detail.Morning, e)
		case models.SlotEvening:
			detail.Evening = append(detail.Evening, e)
		default:
			detail.Anytime = append(detail.Anytime, e)
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	journey, err := a.resolveJourney(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "Journey not found", "Failed to subscribe")
		return
	}
	sub, created, err := a.Engine.Subscribe(r.Context(), userID, journey.ID)
	if err != nil {
		writeStoreError(w, err, "Journey not found", "Failed to subscribe")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

func (a *API) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	journey, err := a.resolveJourney(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "Journey not found", "Failed to unsubscribe")
		return
	}
	if err := a.Engine.Unsubscribe(r.Context(), userID, journey.ID); err != nil {
		writeStoreError(w, err, "Not subscribed", "Failed to unsubscribe")
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{ID: journey.ID})
}

func (a *API) handleListHabits(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	day, ok := a.queryDay(w, r)
	if !ok {
		return
	}
	grouped, err := a.Engine.Habits(r.Context(), userID, day)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to resolve habits")
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (a *API) handleAddCustomHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req customHabitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DuaID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Dua_id required")
		return
	}
	habit, created, err := a.Engine.AddCustomHabit(r.Context(), userID, req.DuaID, models.TimeSlot(req.Slot), req.Position)
	if err != nil {
		if errors.Is(err, practice.ErrInvalidSlot) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Slot must be morning, anytime or evening")
			return
		}
		writeStoreError(w, err, "Dua not found", "Failed to add habit")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, habit)
}

func (a *API) handleRemoveCustomHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Engine.RemoveCustomHabit(r.Context(), userID, id); err != nil {
		writeStoreError(w, err, "Custom habit not found", "Failed to remove habit")
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{ID: id})
}

func (a *API) handleCompleteHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	id := chi.URLParam(r, "id")
	var req completeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Date required")
		return
	}
	day, err := models.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date")
		return
	}
	result, err := a.Engine.Complete(r.Context(), userID, id, day)
	if err != nil {
		writeStoreError(w, err, "Habit not found", "Failed to complete habit")
		return
	}
	if result.Completed {
		recordCompletion(result.OffPlan)
		if result.OffPlan {
			a.Log.Warn().Str("user_id", userID).Str("habit_id", id).Str("day", string(day)).Msg("off-plan completion")
		}
		if result.LeveledUp {
			levelUps.Inc()
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	day, ok := a.queryDay(w, r)
	if !ok {
		return
	}
	progress, err := a.Engine.Progress(r.Context(), userID, day)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	day, ok := a.queryDay(w, r)
	if !ok {
		return
	}
	days := 7
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid days")
			return
		}
		days = n
	}
	if days > 31 {
		days = 31
	}
	stats, err := a.Engine.Stats(r.Context(), userID, day, days)
	if err != nil {
		writeStoreError(w, err, "User not found", "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// resolveJourney accepts a journey id or its content-pack slug, so clients
// can deep-link by the slug without first listing the catalog.
func (a *API) resolveJourney(ctx context.Context, key string) (models.Journey, error) {
	journey, err := a.Store.GetJourney(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return a.Store.GetJourneyBySlug(ctx, key)
	}
	return journey, err
}

// queryDay reads the optional user-local date from the query string and
// falls back to the server-local day.
func (a *API) queryDay(w http.ResponseWriter, r *http.Request) (models.Day, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return a.Engine.Today(), true
	}
	day, err := models.ParseDay(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date")
		return "", false
	}
	return day, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid payload")
		return false
	}
	return true
}
