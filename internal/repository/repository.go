package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nextstocks/portfolio/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (uid, first_name, last_name, company_name, phone_number, email, password_hash,
			country, country_code, country_calling_code, currency, in_eu,
			is_blocked, is_company, is_superuser, joined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, user.UID, user.FirstName, user.LastName, user.CompanyName, user.PhoneNumber, user.Email, user.PasswordHash,
		user.Country, user.CountryCode, user.CountryCallingCode, user.Currency, user.InEU,
		user.IsBlocked, user.IsCompany, user.IsSuperuser, user.Joined, user.UpdatedAt)
	return err
}

const userColumns = `uid, first_name, last_name, company_name, phone_number, email, password_hash,
	country, country_code, country_calling_code, currency, in_eu,
	is_blocked, is_company, is_superuser, joined, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.UID,
		&user.FirstName,
		&user.LastName,
		&user.CompanyName,
		&user.PhoneNumber,
		&user.Email,
		&user.PasswordHash,
		&user.Country,
		&user.CountryCode,
		&user.CountryCallingCode,
		&user.Currency,
		&user.InEU,
		&user.IsBlocked,
		&user.IsCompany,
		&user.IsSuperuser,
		&user.Joined,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByUID(ctx context.Context, uid string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, excludeUID string, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE uid != $1
		ORDER BY first_name, company_name
		LIMIT $2
	`, excludeUID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET first_name = $1, last_name = $2, company_name = $3, phone_number = $4,
			is_blocked = $5, updated_at = $6
		WHERE uid = $7
	`, user.FirstName, user.LastName, user.CompanyName, user.PhoneNumber,
		user.IsBlocked, time.Now().UTC(), user.UID)
	return err
}

func (s *Store) UpdateUserPassword(ctx context.Context, uid, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE uid = $3
	`, passwordHash, time.Now().UTC(), uid)
	return err
}

// DeleteUser removes the user; known_ips, banned_ips and verified_emails
// rows cascade with it.
func (s *Store) DeleteUser(ctx context.Context, uid string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	return err
}

func (s *Store) AddKnownIP(ctx context.Context, userUID, ip string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO known_ips (uid, ip, user_uid)
		VALUES ($1, $2, $3)
		ON CONFLICT (ip, user_uid) DO NOTHING
	`, uuid.NewString(), ip, userUID)
	return err
}

func (s *Store) KnownIPExists(ctx context.Context, userUID, ip string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM known_ips WHERE user_uid = $1 AND ip = $2)
	`, userUID, ip).Scan(&exists)
	return exists, err
}

func (s *Store) AddBannedIP(ctx context.Context, userUID, ip string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO banned_ips (uid, ip, user_uid)
		VALUES ($1, $2, $3)
		ON CONFLICT (ip, user_uid) DO NOTHING
	`, uuid.NewString(), ip, userUID)
	return err
}

func (s *Store) BannedIPExists(ctx context.Context, userUID, ip string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM banned_ips WHERE user_uid = $1 AND ip = $2)
	`, userUID, ip).Scan(&exists)
	return exists, err
}

func (s *Store) RemoveBannedIP(ctx context.Context, userUID, ip string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM banned_ips WHERE user_uid = $1 AND ip = $2`, userUID, ip)
	return err
}

func (s *Store) AddVerifiedEmail(ctx context.Context, userUID, email string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verified_emails (uid, email, user_uid, verified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
	`, uuid.NewString(), email, userUID, time.Now().UTC())
	return err
}

func (s *Store) HasVerifiedEmail(ctx context.Context, userUID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM verified_emails WHERE user_uid = $1)
	`, userUID).Scan(&exists)
	return exists, err
}

func (s *Store) CreateFAQ(ctx context.Context, faq model.FAQ) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO faqs (uid, question, answer, domain, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, faq.UID, faq.Question, faq.Answer, faq.Domain, faq.CreatedAt)
	return err
}

func (s *Store) ListFAQs(ctx context.Context, limit int) ([]model.FAQ, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, question, answer, domain, created_at
		FROM faqs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faqs []model.FAQ
	for rows.Next() {
		var faq model.FAQ
		if err := rows.Scan(&faq.UID, &faq.Question, &faq.Answer, &faq.Domain, &faq.CreatedAt); err != nil {
			return nil, err
		}
		faqs = append(faqs, faq)
	}
	return faqs, rows.Err()
}

func (s *Store) UpdateFAQ(ctx context.Context, faq model.FAQ) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE faqs SET question = $1, answer = $2, domain = $3 WHERE uid = $4
	`, faq.Question, faq.Answer, faq.Domain, faq.UID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteFAQ(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM faqs WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) CreateTestimonial(ctx context.Context, testimonial model.Testimonial) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO testimonials (uid, name, position, company, testimony, rating, domain, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, testimonial.UID, testimonial.Name, testimonial.Position, testimonial.Company,
		testimonial.Testimony, testimonial.Rating, testimonial.Domain, testimonial.CreatedAt)
	return err
}

func (s *Store) ListTestimonials(ctx context.Context, limit int) ([]model.Testimonial, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, name, position, company, testimony, rating, domain, created_at
		FROM testimonials
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var testimonials []model.Testimonial
	for rows.Next() {
		var item model.Testimonial
		if err := rows.Scan(&item.UID, &item.Name, &item.Position, &item.Company,
			&item.Testimony, &item.Rating, &item.Domain, &item.CreatedAt); err != nil {
			return nil, err
		}
		testimonials = append(testimonials, item)
	}
	return testimonials, rows.Err()
}

func (s *Store) UpdateTestimonial(ctx context.Context, testimonial model.Testimonial) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE testimonials
		SET name = $1, position = $2, company = $3, testimony = $4, rating = $5, domain = $6
		WHERE uid = $7
	`, testimonial.Name, testimonial.Position, testimonial.Company,
		testimonial.Testimony, testimonial.Rating, testimonial.Domain, testimonial.UID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteTestimonial(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM testimonials WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) CreateProject(ctx context.Context, project model.Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (uid, name, description, client_name, domain, completed, existing_link, stacks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, project.UID, project.Name, project.Description, project.ClientName, project.Domain,
		project.Completed, project.ExistingLink, project.Stacks, project.CreatedAt)
	return err
}

func (s *Store) GetProject(ctx context.Context, uid string) (model.Project, error) {
	var project model.Project
	err := s.pool.QueryRow(ctx, `
		SELECT uid, name, description, client_name, domain, completed, existing_link, stacks, created_at
		FROM projects
		WHERE uid = $1
	`, uid).Scan(&project.UID, &project.Name, &project.Description, &project.ClientName,
		&project.Domain, &project.Completed, &project.ExistingLink, &project.Stacks, &project.CreatedAt)
	return project, err
}

func (s *Store) ListProjects(ctx context.Context, limit int) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, name, description, client_name, domain, completed, existing_link, stacks, created_at
		FROM projects
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var project model.Project
		if err := rows.Scan(&project.UID, &project.Name, &project.Description, &project.ClientName,
			&project.Domain, &project.Completed, &project.ExistingLink, &project.Stacks, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, project model.Project) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET name = $1, description = $2, client_name = $3, domain = $4,
			completed = $5, existing_link = $6, stacks = $7
		WHERE uid = $8
	`, project.Name, project.Description, project.ClientName, project.Domain,
		project.Completed, project.ExistingLink, project.Stacks, project.UID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) CreateService(ctx context.Context, service model.Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (uid, name, description, domain, min_duration, max_duration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, service.UID, service.Name, service.Description, service.Domain,
		service.MinDuration, service.MaxDuration, service.CreatedAt)
	return err
}

func (s *Store) GetService(ctx context.Context, uid string) (model.Service, error) {
	var service model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT uid, name, description, domain, min_duration, max_duration, created_at
		FROM services
		WHERE uid = $1
	`, uid).Scan(&service.UID, &service.Name, &service.Description, &service.Domain,
		&service.MinDuration, &service.MaxDuration, &service.CreatedAt)
	return service, err
}

func (s *Store) ListServices(ctx context.Context, limit int) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, name, description, domain, min_duration, max_duration, created_at
		FROM services
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var service model.Service
		if err := rows.Scan(&service.UID, &service.Name, &service.Description, &service.Domain,
			&service.MinDuration, &service.MaxDuration, &service.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, rows.Err()
}

func (s *Store) DeleteService(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) CreateServiceRequest(ctx context.Context, request model.ServiceRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_requests (uid, service_uid, user_uid, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, request.UID, request.ServiceUID, request.UserUID, request.Details, request.Status, request.CreatedAt)
	return err
}

func (s *Store) ListServiceRequests(ctx context.Context, limit int) ([]model.ServiceRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, service_uid, user_uid, details, status, created_at
		FROM service_requests
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []model.ServiceRequest
	for rows.Next() {
		var request model.ServiceRequest
		if err := rows.Scan(&request.UID, &request.ServiceUID, &request.UserUID,
			&request.Details, &request.Status, &request.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

func (s *Store) UpdateServiceRequestStatus(ctx context.Context, uid, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE service_requests SET status = $1 WHERE uid = $2`, status, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) InsertPageView(ctx context.Context, view model.PageView) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page_views (uid, pathname, domain, ip, time_spent_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, view.UID, view.Pathname, view.Domain, view.IP, view.TimeSpentSeconds, view.CreatedAt)
	return err
}

func (s *Store) CountPageViews(ctx context.Context) ([]model.PageViewCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pathname, COUNT(*)
		FROM page_views
		GROUP BY pathname
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []model.PageViewCount
	for rows.Next() {
		var count model.PageViewCount
		if err := rows.Scan(&count.Pathname, &count.Views); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}
