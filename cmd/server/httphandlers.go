package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"example.com/activityfeed/internal/middleware"
	"example.com/activityfeed/internal/models"
)

// --- HTTP Handlers ---

// createUserHandler handles POST requests to create a new user.
// Expects JSON body: {"username": "example"}
// Returns JSON response: {"user_id": <id>, "username": ..., "token": <jwt>}
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, "http/users", &body) {
		return
	}

	if len(body.Username) == 0 || len(body.Username) > 50 {
		logg.Info("http/users", "Invalid username length")
		http.Error(w, "username must be 1-50 characters", http.StatusBadRequest)
		return
	}

	user, err := s.store.CreateUser(r.Context(), body.Username)
	if err != nil {
		writeError(w, "http/users", "Failed to create user", err)
		return
	}

	token, err := middleware.IssueToken(s.jwtSecret, user.ID, s.tokenTTL)
	if err != nil {
		logg.Error("http/users", "Failed to generate token", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	logg.Info("http/users", "User ready with user_id="+user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"token":    token,
	})
}

// followHandler makes the caller follow another user.
// Expects JSON body: {"followee_id": "<id>", "is_private": false}
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodPost)
	if !ok {
		return
	}
	var body struct {
		FolloweeID string `json:"followee_id"`
		IsPrivate  bool   `json:"is_private"`
	}
	if !decodeBody(w, r, "http/follow", &body) {
		return
	}
	if body.FolloweeID == "" || body.FolloweeID == userID {
		http.Error(w, "followee_id must name another user", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUser(ctx, body.FolloweeID); err != nil {
		writeError(w, "http/follow", "Failed to load followee", err)
		return
	}

	follow, err := s.store.CreateFollow(ctx, body.FolloweeID, userID, body.IsPrivate)
	if err != nil {
		writeError(w, "http/follow", "Failed to create follow relationship", err)
		return
	}
	if err := s.engine.AddActivity(ctx, userID, follow.ID, models.TypeFollow, body.IsPrivate, false); err != nil {
		writeError(w, "http/follow", "Failed to record follow activity", err)
		return
	}

	logg.Info("http/follow", "User "+userID+" followed "+body.FolloweeID)
	writeJSON(w, http.StatusOK, follow)
}

// friendHandler records a friendship between the caller and another user.
// Expects JSON body: {"user_friend": "<id>"}
func (s *Server) friendHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodPost)
	if !ok {
		return
	}
	var body struct {
		UserFriend string `json:"user_friend"`
	}
	if !decodeBody(w, r, "http/friends", &body) {
		return
	}
	if body.UserFriend == "" || body.UserFriend == userID {
		http.Error(w, "user_friend must name another user", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUser(ctx, body.UserFriend); err != nil {
		writeError(w, "http/friends", "Failed to load friend", err)
		return
	}

	friend, err := s.store.CreateFriend(ctx, userID, body.UserFriend)
	if err != nil {
		writeError(w, "http/friends", "Failed to create friendship", err)
		return
	}
	// Friendships are only shown to the parties and their friends.
	if err := s.engine.AddActivity(ctx, userID, friend.ID, models.TypeFriend, true, false); err != nil {
		writeError(w, "http/friends", "Failed to record friend activity", err)
		return
	}

	writeJSON(w, http.StatusOK, friend)
}

// postsHandler creates a post (POST) or deletes one of the caller's posts
// (DELETE ?id=).
func (s *Server) postsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createPostHandler(w, r)
	case http.MethodDelete:
		s.deletePostHandler(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// createPostHandler stores a post and fans it out.
// Expects JSON body: {"content": "...", "is_private": false, "is_personal": false}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodPost)
	if !ok {
		return
	}
	var body struct {
		Content    string `json:"content"`
		IsPrivate  bool   `json:"is_private"`
		IsPersonal bool   `json:"is_personal"`
	}
	if !decodeBody(w, r, "http/posts", &body) {
		return
	}

	if len(body.Content) == 0 || len(body.Content) > 1000 {
		logg.Info("http/posts", "Post content length invalid for user_id="+userID)
		http.Error(w, "post content must be 1-1000 characters", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	post, err := s.store.CreatePost(ctx, userID, body.Content, body.IsPrivate, body.IsPersonal)
	if err != nil {
		writeError(w, "http/posts", "Failed to save post", err)
		return
	}
	if err := s.engine.AddActivity(ctx, userID, post.ID, models.TypePost, post.IsPrivate, post.IsPersonal); err != nil {
		writeError(w, "http/posts", "Failed to record post activity", err)
		return
	}

	logg.Info("http/posts", "Post created successfully by user_id="+userID)
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodDelete)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.store.DeletePost(ctx, userID, id); err != nil {
		writeError(w, "http/posts", "Failed to delete post", err)
		return
	}
	if err := s.engine.RemoveActivity(ctx, id); err != nil {
		writeError(w, "http/posts", "Failed to remove post from timelines", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// likeHandler records the caller liking an item.
// Expects JSON body: {"item": "<reference>"}
func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodPost)
	if !ok {
		return
	}
	var body struct {
		Item string `json:"item"`
	}
	if !decodeBody(w, r, "http/likes", &body) {
		return
	}
	if body.Item == "" {
		http.Error(w, "missing item", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	like, err := s.store.CreateLike(ctx, userID, body.Item)
	if err != nil {
		writeError(w, "http/likes", "Failed to save like", err)
		return
	}
	if err := s.engine.AddActivity(ctx, userID, like.ID, models.TypeLike, false, false); err != nil {
		writeError(w, "http/likes", "Failed to record like activity", err)
		return
	}
	writeJSON(w, http.StatusOK, like)
}

// getFeedHandler returns a page of a user's aggregated feed.
// Query parameters: ?user=<id>&cursor=<timeuuid>&limit=50; user defaults to the caller.
func (s *Server) getFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodGet)
	if !ok {
		return
	}
	owner, cursor, limit := pageParams(r, userID)

	page, err := s.engine.GetAggregatedFeed(r.Context(), userID, owner, cursor, limit)
	if err != nil {
		writeError(w, "http/feed", "Failed to get feed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// getTimelineHandler returns a page of what a user did.
// Query parameters as for /feed.
func (s *Server) getTimelineHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r, http.MethodGet)
	if !ok {
		return
	}
	owner, cursor, limit := pageParams(r, userID)

	page, err := s.engine.GetOwnTimeline(r.Context(), userID, owner, cursor, limit)
	if err != nil {
		writeError(w, "http/timeline", "Failed to get timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// --- helpers ---

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// requester checks the method and returns the authenticated caller.
func requester(w http.ResponseWriter, r *http.Request, method string) (string, bool) {
	if !allowMethod(w, r, method) {
		return "", false
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info("http", "Unauthorized request to "+r.URL.Path)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, module string, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logg.Error(module, "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func pageParams(r *http.Request, userID string) (owner, cursor string, limit int) {
	q := r.URL.Query()
	owner = q.Get("user")
	if owner == "" {
		owner = userID
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	return owner, q.Get("cursor"), limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

// writeError logs err and maps it onto a status code.
func writeError(w http.ResponseWriter, module, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrInvalidCursor):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logg.Error(module, msg, err)
		http.Error(w, "internal error", status)
		return
	}
	logg.Info(module, msg+": "+err.Error())
	http.Error(w, err.Error(), status)
}
