package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nextstocks/portfolio/internal/auth"
	"nextstocks/portfolio/internal/blocklist"
	"nextstocks/portfolio/internal/codes"
	"nextstocks/portfolio/internal/config"
	"nextstocks/portfolio/internal/crypto"
	"nextstocks/portfolio/internal/geo"
	"nextstocks/portfolio/internal/model"
	"nextstocks/portfolio/internal/repository"
	"nextstocks/portfolio/internal/trust"
)

type Server struct {
	cfg       config.Config
	store     *repository.Store
	verifier  *auth.Verifier
	resolver  *trust.Resolver
	blocklist *blocklist.Blocklist
	codes     *codes.Store
	geo       *geo.Client
}

func NewServer(cfg config.Config, store *repository.Store, revocations *blocklist.Blocklist, codeStore *codes.Store, geoClient *geo.Client) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		verifier:  auth.NewVerifier(cfg.JWTSecret, revocations),
		resolver:  trust.NewResolver(store, cfg.TrustedHosts),
		blocklist: revocations,
		codes:     codeStore,
		geo:       geoClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
			r.Post("/verify-email", s.handleVerifyEmail)
			r.Get("/refresh_token", s.handleRefreshToken)
			r.Get("/logout", s.handleLogout)
			r.Post("/password-reset-request", s.handlePasswordResetRequest)
			r.Post("/password-reset-confirm", s.handlePasswordResetConfirm)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.currentUser)
			r.With(s.requireSuperuser).Get("/", s.handleListUsers)
			r.Get("/me", s.handleGetMe)
			r.Get("/{uid}", s.handleGetUser)
			r.Patch("/{uid}", s.handleUpdateUser)
			r.Patch("/{uid}/password", s.handleUpdateUserPassword)
			r.Delete("/{uid}", s.handleDeleteUser)
			r.Post("/{uid}/allow-ips", s.handleAllowIP)
			r.Post("/{uid}/ban-ips", s.handleBanIP)
			r.Delete("/{uid}/ban-ips/{ip}", s.handleUnbanIP)
		})

		r.Route("/faqs", func(r chi.Router) {
			r.Get("/", s.handleListFAQs)
			r.With(s.currentUser, s.requireSuperuser).Post("/", s.handleCreateFAQ)
			r.With(s.currentUser, s.requireSuperuser).Patch("/{uid}", s.handleUpdateFAQ)
			r.With(s.currentUser, s.requireSuperuser).Delete("/{uid}", s.handleDeleteFAQ)
		})

		r.Route("/testimonials", func(r chi.Router) {
			r.Get("/", s.handleListTestimonials)
			r.With(s.currentUser, s.requireSuperuser).Post("/", s.handleCreateTestimonial)
			r.With(s.currentUser, s.requireSuperuser).Patch("/{uid}", s.handleUpdateTestimonial)
			r.With(s.currentUser, s.requireSuperuser).Delete("/{uid}", s.handleDeleteTestimonial)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Get("/{uid}", s.handleGetProject)
			r.With(s.currentUser, s.requireSuperuser).Post("/", s.handleCreateProject)
			r.With(s.currentUser, s.requireSuperuser).Patch("/{uid}", s.handleUpdateProject)
			r.With(s.currentUser, s.requireSuperuser).Delete("/{uid}", s.handleDeleteProject)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)
			r.With(s.currentUser, s.requireSuperuser).Post("/", s.handleCreateService)
			r.With(s.currentUser, s.requireSuperuser).Delete("/{uid}", s.handleDeleteService)
			r.With(s.currentUser).Post("/{uid}/requests", s.handleCreateServiceRequest)
			r.With(s.currentUser, s.requireSuperuser).Get("/requests", s.handleListServiceRequests)
			r.With(s.currentUser, s.requireSuperuser).Patch("/requests/{uid}", s.handleUpdateServiceRequest)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Post("/page-view", s.handlePageView)
			r.With(s.currentUser, s.requireSuperuser).Get("/", s.handleListPageViews)
		})
	})

	return r
}

type signupRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	CompanyName *string `json:"companyName"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	if _, err := s.store.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusBadRequest, "user_already_exist")
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	passwordHash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		UID:          uuid.NewString(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CompanyName:  req.CompanyName,
		PhoneNumber:  req.PhoneNumber,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Joined:       now,
		UpdatedAt:    now,
	}

	switch r.URL.Query().Get("permission") {
	case "superuser":
		user.IsCompany = true
		user.IsSuperuser = true
	default:
		user.IsCompany = true
	}

	ip := s.resolver.ClientIP(r)
	if location, err := s.geo.Lookup(r.Context(), ip); err == nil {
		user.Country = optional(location.Country)
		user.CountryCode = optional(location.CountryCode)
		user.CountryCallingCode = optional(location.CountryCallingCode)
		user.Currency = optional(location.Currency)
		user.InEU = location.InEU
	} else {
		log.Printf("geo lookup failed for %s: %v", ip, err)
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	// The registering address is trusted from day one; every other address
	// has to go through the explicit allow-ips flow.
	if err := s.store.AddKnownIP(r.Context(), user.UID, ip); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	code, err := crypto.NewNumericCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.codes.StoreVerificationCode(r.Context(), user.UID, code); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Account created successfully",
		"code":    code,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Message      string       `json:"message"`
	AccessToken  string       `json:"accessToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	Code         string       `json:"code,omitempty"`
	User         *userSummary `json:"user,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	// IP trust is checked before the password so a banned or unknown
	// address learns nothing about credential validity.
	ip := s.resolver.ClientIP(r)
	user, err := s.resolver.Resolve(r.Context(), req.Email, ip)
	if err != nil {
		s.writeDomainError(w, err, ip)
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	verified, err := s.store.HasVerifiedEmail(r.Context(), user.UID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !verified {
		code, err := crypto.NewNumericCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if err := s.codes.StoreVerificationCode(r.Context(), user.UID, code); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{
			Message: "Please verify your email to get authenticated",
			Code:    code,
		})
		return
	}

	subject := auth.Subject{Email: user.Email, UserUID: user.UID}
	accessToken, err := auth.NewToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, subject, auth.AccessToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	refreshToken, err := auth.NewToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.RefreshTokenTTL, subject, auth.RefreshToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	summary := mapUserSummary(user)
	writeJSON(w, http.StatusOK, tokenResponse{
		Message:      "Authenticated successfully",
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         &summary,
	})
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	verified, err := s.store.HasVerifiedEmail(r.Context(), user.UID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if verified {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Email already verified"})
		return
	}

	stored, ok, err := s.codes.ConsumeVerificationCode(r.Context(), user.UID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable")
		return
	}
	if !ok || stored != req.Code {
		writeError(w, http.StatusUnauthorized, "invalid_code")
		return
	}

	if err := s.store.AddVerifiedEmail(r.Context(), user.UID, user.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"), auth.RefreshToken)
	if err != nil {
		s.writeDomainError(w, err, "")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), claims.User.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, err := auth.NewToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL,
		auth.Subject{Email: user.Email, UserUID: user.UID}, auth.AccessToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Message:     "AccessToken generated successfully",
		AccessToken: accessToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"), auth.AccessToken)
	if err != nil {
		s.writeDomainError(w, err, "")
		return
	}

	if err := s.blocklist.Add(r.Context(), claims.JTI(), claims.RemainingTTL()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	code, err := crypto.NewNumericCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.codes.StorePasswordResetCode(r.Context(), user.UID, code); err != nil {
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Please check your email for instructions to reset your password",
		"code":    code,
	})
}

type passwordResetConfirm struct {
	Email              string `json:"email"`
	Code               string `json:"code"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirm
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.NewPassword != req.ConfirmNewPassword {
		writeError(w, http.StatusBadRequest, "passwords_do_not_match")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	stored, ok, err := s.codes.ConsumePasswordResetCode(r.Context(), user.UID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable")
		return
	}
	if !ok || stored != req.Code {
		writeError(w, http.StatusUnauthorized, "invalid_code")
		return
	}

	passwordHash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.store.UpdateUserPassword(r.Context(), user.UID, passwordHash); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

type userSummary struct {
	UID         string  `json:"uid"`
	Email       string  `json:"email"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	CompanyName *string `json:"companyName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Country     *string `json:"country,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	IsBlocked   bool    `json:"isBlocked"`
	IsCompany   bool    `json:"isCompany"`
	IsSuperuser bool    `json:"isSuperuser"`
	Joined      int64   `json:"joined"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		UID:         user.UID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		CompanyName: user.CompanyName,
		PhoneNumber: user.PhoneNumber,
		Country:     user.Country,
		Currency:    user.Currency,
		IsBlocked:   user.IsBlocked,
		IsCompany:   user.IsCompany,
		IsSuperuser: user.IsSuperuser,
		Joined:      user.Joined.Unix(),
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	users, err := s.store.ListUsers(r.Context(), current.UID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]userSummary, 0, len(users))
	for _, user := range users {
		resp = append(resp, mapUserSummary(user))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, mapUserSummary(*current))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid && !current.IsSuperuser {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	user, err := s.store.GetUserByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type updateUserRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	CompanyName *string `json:"companyName"`
	PhoneNumber *string `json:"phoneNumber"`
	IsBlocked   *bool   `json:"isBlocked"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid && !current.IsSuperuser {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.store.GetUserByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if req.FirstName != nil {
		user.FirstName = req.FirstName
	}
	if req.LastName != nil {
		user.LastName = req.LastName
	}
	if req.CompanyName != nil {
		user.CompanyName = req.CompanyName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.IsBlocked != nil {
		// Only an operator can toggle the account lock.
		if !current.IsSuperuser {
			writeError(w, http.StatusUnauthorized, "insufficient_permission")
			return
		}
		user.IsBlocked = *req.IsBlocked
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type changePasswordRequest struct {
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

func (s *Server) handleUpdateUserPassword(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.NewPassword != req.ConfirmNewPassword {
		writeError(w, http.StatusBadRequest, "passwords_do_not_match")
		return
	}

	passwordHash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.store.UpdateUserPassword(r.Context(), uid, passwordHash); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid && !current.IsSuperuser {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	if err := s.store.DeleteUser(r.Context(), uid); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

type ipRequest struct {
	IP string `json:"ip"`
}

func (s *Server) handleAllowIP(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid && !current.IsSuperuser {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	var req ipRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.IP) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := s.store.AddKnownIP(r.Context(), uid, strings.TrimSpace(req.IP)); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": req.IP + " added to known IPs"})
}

func (s *Server) handleBanIP(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid && !current.IsSuperuser {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	var req ipRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.IP) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := s.store.AddBannedIP(r.Context(), uid, strings.TrimSpace(req.IP)); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": req.IP + " banned successfully"})
}

func (s *Server) handleUnbanIP(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	uid := chi.URLParam(r, "uid")
	if current.UID != uid && !current.IsSuperuser {
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
		return
	}

	ip := chi.URLParam(r, "ip")
	if err := s.store.RemoveBannedIP(r.Context(), uid, ip); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": ip + " has been unbanned successfully"})
}

type faqRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Domain   string `json:"domain"`
}

type faqResponse struct {
	UID       string `json:"uid"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Domain    string `json:"domain"`
	CreatedAt int64  `json:"createdAt"`
}

func mapFAQ(faq model.FAQ) faqResponse {
	return faqResponse{
		UID:       faq.UID,
		Question:  faq.Question,
		Answer:    faq.Answer,
		Domain:    faq.Domain,
		CreatedAt: faq.CreatedAt.Unix(),
	}
}

func (s *Server) handleListFAQs(w http.ResponseWriter, r *http.Request) {
	faqs, err := s.store.ListFAQs(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]faqResponse, 0, len(faqs))
	for _, faq := range faqs {
		resp = append(resp, mapFAQ(faq))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateFAQ(w http.ResponseWriter, r *http.Request) {
	var req faqRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	faq := model.FAQ{
		UID:       uuid.NewString(),
		Question:  req.Question,
		Answer:    req.Answer,
		Domain:    req.Domain,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateFAQ(r.Context(), faq); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapFAQ(faq))
}

func (s *Server) handleUpdateFAQ(w http.ResponseWriter, r *http.Request) {
	var req faqRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	faq := model.FAQ{
		UID:      chi.URLParam(r, "uid"),
		Question: req.Question,
		Answer:   req.Answer,
		Domain:   req.Domain,
	}
	if err := s.store.UpdateFAQ(r.Context(), faq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "faq_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "FAQ updated successfully"})
}

func (s *Server) handleDeleteFAQ(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFAQ(r.Context(), chi.URLParam(r, "uid")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "faq_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "FAQ deleted successfully"})
}

type testimonialRequest struct {
	Name      string `json:"name"`
	Position  string `json:"position"`
	Company   string `json:"company"`
	Testimony string `json:"testimony"`
	Rating    int    `json:"rating"`
	Domain    string `json:"domain"`
}

func (s *Server) handleListTestimonials(w http.ResponseWriter, r *http.Request) {
	testimonials, err := s.store.ListTestimonials(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	type testimonialResponse struct {
		UID       string `json:"uid"`
		Name      string `json:"name"`
		Position  string `json:"position"`
		Company   string `json:"company"`
		Testimony string `json:"testimony"`
		Rating    int    `json:"rating"`
		Domain    string `json:"domain"`
		CreatedAt int64  `json:"createdAt"`
	}
	resp := make([]testimonialResponse, 0, len(testimonials))
	for _, item := range testimonials {
		resp = append(resp, testimonialResponse{
			UID:       item.UID,
			Name:      item.Name,
			Position:  item.Position,
			Company:   item.Company,
			Testimony: item.Testimony,
			Rating:    item.Rating,
			Domain:    item.Domain,
			CreatedAt: item.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTestimonial(w http.ResponseWriter, r *http.Request) {
	var req testimonialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Name == "" || req.Company == "" || req.Testimony == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "invalid_rating")
		return
	}

	testimonial := model.Testimonial{
		UID:       uuid.NewString(),
		Name:      req.Name,
		Position:  req.Position,
		Company:   req.Company,
		Testimony: req.Testimony,
		Rating:    req.Rating,
		Domain:    req.Domain,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTestimonial(r.Context(), testimonial); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uid": testimonial.UID})
}

func (s *Server) handleUpdateTestimonial(w http.ResponseWriter, r *http.Request) {
	var req testimonialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	testimonial := model.Testimonial{
		UID:       chi.URLParam(r, "uid"),
		Name:      req.Name,
		Position:  req.Position,
		Company:   req.Company,
		Testimony: req.Testimony,
		Rating:    req.Rating,
		Domain:    req.Domain,
	}
	if err := s.store.UpdateTestimonial(r.Context(), testimonial); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "testimonial_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Testimonial updated successfully"})
}

func (s *Server) handleDeleteTestimonial(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTestimonial(r.Context(), chi.URLParam(r, "uid")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "testimonial_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Testimonial deleted successfully"})
}

type projectRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ClientName   *string  `json:"clientName"`
	Domain       string   `json:"domain"`
	Completed    bool     `json:"completed"`
	ExistingLink *string  `json:"existingLink"`
	Stacks       []string `json:"stacks"`
}

type projectResponse struct {
	UID          string   `json:"uid"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ClientName   *string  `json:"clientName,omitempty"`
	Domain       string   `json:"domain"`
	Completed    bool     `json:"completed"`
	ExistingLink *string  `json:"existingLink,omitempty"`
	Stacks       []string `json:"stacks"`
	CreatedAt    int64    `json:"createdAt"`
}

func mapProject(project model.Project) projectResponse {
	stacks := project.Stacks
	if stacks == nil {
		stacks = []string{}
	}
	return projectResponse{
		UID:          project.UID,
		Name:         project.Name,
		Description:  project.Description,
		ClientName:   project.ClientName,
		Domain:       project.Domain,
		Completed:    project.Completed,
		ExistingLink: project.ExistingLink,
		Stacks:       stacks,
		CreatedAt:    project.CreatedAt.Unix(),
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]projectResponse, 0, len(projects))
	for _, project := range projects {
		resp = append(resp, mapProject(project))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProject(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "project_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapProject(project))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	project := model.Project{
		UID:          uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		ClientName:   req.ClientName,
		Domain:       req.Domain,
		Completed:    req.Completed,
		ExistingLink: req.ExistingLink,
		Stacks:       req.Stacks,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapProject(project))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	project := model.Project{
		UID:          chi.URLParam(r, "uid"),
		Name:         req.Name,
		Description:  req.Description,
		ClientName:   req.ClientName,
		Domain:       req.Domain,
		Completed:    req.Completed,
		ExistingLink: req.ExistingLink,
		Stacks:       req.Stacks,
	}
	if err := s.store.UpdateProject(r.Context(), project); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "project_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project updated successfully"})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProject(r.Context(), chi.URLParam(r, "uid")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "project_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted successfully"})
}

type serviceRequestBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	MinDuration int    `json:"minDuration"`
	MaxDuration int    `json:"maxDuration"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	type serviceResponse struct {
		UID         string `json:"uid"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Domain      string `json:"domain"`
		MinDuration int    `json:"minDuration"`
		MaxDuration int    `json:"maxDuration"`
		CreatedAt   int64  `json:"createdAt"`
	}
	resp := make([]serviceResponse, 0, len(services))
	for _, service := range services {
		resp = append(resp, serviceResponse{
			UID:         service.UID,
			Name:        service.Name,
			Description: service.Description,
			Domain:      service.Domain,
			MinDuration: service.MinDuration,
			MaxDuration: service.MaxDuration,
			CreatedAt:   service.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.MinDuration <= 0 {
		req.MinDuration = 14
	}
	if req.MaxDuration <= 0 {
		req.MaxDuration = 90
	}

	service := model.Service{
		UID:         uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Domain:      req.Domain,
		MinDuration: req.MinDuration,
		MaxDuration: req.MaxDuration,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateService(r.Context(), service); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uid": service.UID})
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteService(r.Context(), chi.URLParam(r, "uid")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "service_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Service deleted successfully"})
}

type createServiceRequestBody struct {
	Details string `json:"details"`
}

func (s *Server) handleCreateServiceRequest(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())
	serviceUID := chi.URLParam(r, "uid")

	if _, err := s.store.GetService(r.Context(), serviceUID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "service_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	var req createServiceRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Details) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	request := model.ServiceRequest{
		UID:        uuid.NewString(),
		ServiceUID: serviceUID,
		UserUID:    current.UID,
		Details:    req.Details,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateServiceRequest(r.Context(), request); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uid": request.UID, "status": request.Status})
}

func (s *Server) handleListServiceRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.store.ListServiceRequests(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	type requestResponse struct {
		UID        string `json:"uid"`
		ServiceUID string `json:"serviceUid"`
		UserUID    string `json:"userUid"`
		Details    string `json:"details"`
		Status     string `json:"status"`
		CreatedAt  int64  `json:"createdAt"`
	}
	resp := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		resp = append(resp, requestResponse{
			UID:        request.UID,
			ServiceUID: request.ServiceUID,
			UserUID:    request.UserUID,
			Details:    request.Details,
			Status:     request.Status,
			CreatedAt:  request.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateServiceRequestBody struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateServiceRequest(w http.ResponseWriter, r *http.Request) {
	var req updateServiceRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	status, err := normalizeRequestStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	if err := s.store.UpdateServiceRequestStatus(r.Context(), chi.URLParam(r, "uid"), status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "requested_service_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request updated successfully"})
}

func normalizeRequestStatus(status string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(status)) {
	case "pending", "accepted", "in_progress", "completed", "declined":
		return strings.TrimSpace(strings.ToLower(status)), nil
	default:
		return "", errors.New("invalid_status")
	}
}

type pageViewRequest struct {
	Pathname         string `json:"pathname"`
	Domain           string `json:"domain"`
	TimeSpentSeconds int    `json:"timeSpentInSeconds"`
}

func (s *Server) handlePageView(w http.ResponseWriter, r *http.Request) {
	var req pageViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Pathname) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	view := model.PageView{
		UID:              uuid.NewString(),
		Pathname:         req.Pathname,
		Domain:           req.Domain,
		IP:               s.resolver.ClientIP(r),
		TimeSpentSeconds: req.TimeSpentSeconds,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.InsertPageView(r.Context(), view); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) handleListPageViews(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountPageViews(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	type countResponse struct {
		Pathname string `json:"pathname"`
		Views    int64  `json:"views"`
	}
	resp := make([]countResponse, 0, len(counts))
	for _, count := range counts {
		resp = append(resp, countResponse{Pathname: count.Pathname, Views: count.Views})
	}
	writeJSON(w, http.StatusOK, resp)
}

// currentUser runs the full authenticated-request pipeline: access-token
// verification followed by the IP trust checks. The resolved user is stored
// on the request context.
func (s *Server) currentUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"), auth.AccessToken)
		if err != nil {
			s.writeDomainError(w, err, "")
			return
		}

		ip := s.resolver.ClientIP(r)
		user, err := s.resolver.Resolve(r.Context(), claims.User.Email, ip)
		if err != nil {
			s.writeDomainError(w, err, ip)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil || !user.IsSuperuser {
			writeError(w, http.StatusUnauthorized, "insufficient_permission")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func userFromContext(ctx context.Context) *model.User {
	value := ctx.Value(userKey{})
	user, _ := value.(*model.User)
	return user
}

// writeDomainError maps auth and trust errors to their fixed status/body
// pairs. Nothing in this taxonomy is allowed to surface as a generic 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, ip string) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "missing_token")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token")
	case errors.Is(err, auth.ErrAccessTokenRequired):
		writeError(w, http.StatusUnauthorized, "access_token_required")
	case errors.Is(err, auth.ErrRefreshTokenRequired):
		writeError(w, http.StatusUnauthorized, "refresh_token_required")
	case errors.Is(err, auth.ErrRevocationUnavailable):
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable")
	case errors.Is(err, auth.ErrInsufficientPermission):
		writeError(w, http.StatusUnauthorized, "insufficient_permission")
	case errors.Is(err, trust.ErrUnknownIP):
		writeJSON(w, http.StatusProxyAuthRequired, map[string]string{"error": "unknown_ip", "ip": ip})
	case errors.Is(err, trust.ErrBannedIP):
		writeError(w, http.StatusUnauthorized, "banned_ip")
	case errors.Is(err, trust.ErrUserBlocked):
		writeError(w, http.StatusUnauthorized, "user_blocked")
	case errors.Is(err, trust.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func listLimit(r *http.Request) int {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
