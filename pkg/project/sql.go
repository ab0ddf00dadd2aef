package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/jobstore"
)

// SQLRepository reads projects from the relational project database.
//
// Tables: project, `user`, publication, sample, sample_attr,
// sample_attr_type, sample_file, sample_file_type.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository wraps an open database handle.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// OpenSQL opens the project database. driver is "mysql" or "sqlite".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, job.NewError("open project db", job.ErrConfiguration, err)
		}
		// Report matched rows so unchanged updates are not mistaken for misses.
		cfg.ClientFoundRows = true
		cfg.ParseTime = true
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, job.NewError("open project db", job.ErrConfiguration, err)
		}
		db := sql.OpenDB(connector)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, job.NewError("open project db", job.ErrStorage, err)
		}
		return NewSQLRepository(db), nil
	case "sqlite", "libsql":
		db, err := jobstore.OpenDB(ctx, jobstore.Config{Path: dsn})
		if err != nil {
			return nil, job.NewError("open project db", job.ErrStorage, err)
		}
		return NewSQLRepository(db), nil
	default:
		return nil, job.NewError("open project db", job.ErrConfiguration, fmt.Errorf("unsupported driver %q", driver))
	}
}

// Close releases the database handle.
func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// GetProject loads a project with its publications, samples, attributes and files.
func (r *SQLRepository) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var (
		p                            Project
		code, desc, inst, owner, acc sql.NullString
		private                      sql.NullBool
		pubStatus                    sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT p.project_id, p.project_code, p.project_name, p.description, p.institution,
			p.private, p.ebi_accno, p.publication_status, u.user_name
		FROM project p
		LEFT JOIN `+"`user`"+` u ON u.user_id = p.ebi_submitter_id
		WHERE p.project_id = ?`, projectID).
		Scan(&p.ID, &code, &p.Name, &desc, &inst, &private, &acc, &pubStatus, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.NewError("get project", job.ErrNotFound, fmt.Errorf("project %s", projectID))
	}
	if err != nil {
		return nil, job.NewError("get project", job.ErrStorage, err)
	}
	p.Code, p.Description, p.Institution, p.Owner, p.Accession = code.String, desc.String, inst.String, owner.String, acc.String
	p.Private = private.Bool
	p.PublicationStatus = PublicationStatus(pubStatus.Int64)

	if p.Publications, err = r.publications(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Samples, err = r.samples(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SQLRepository) publications(ctx context.Context, projectID string) ([]Publication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT publication_id, title, pubmed_id FROM publication WHERE project_id = ? ORDER BY publication_id`, projectID)
	if err != nil {
		return nil, job.NewError("get project publications", job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Publication
	for rows.Next() {
		var (
			pub             Publication
			title, pubmedID sql.NullString
		)
		if err := rows.Scan(&pub.ID, &title, &pubmedID); err != nil {
			return nil, job.NewError("get project publications", job.ErrStorage, err)
		}
		pub.Title, pub.PubmedID = title.String, pubmedID.String
		out = append(out, pub)
	}
	if err := rows.Err(); err != nil {
		return nil, job.NewError("get project publications", job.ErrStorage, err)
	}
	return out, nil
}

func (r *SQLRepository) samples(ctx context.Context, projectID string) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sample_id, sample_acc, sample_name FROM sample WHERE project_id = ? ORDER BY sample_id`, projectID)
	if err != nil {
		return nil, job.NewError("get project samples", job.ErrStorage, err)
	}

	var out []Sample
	for rows.Next() {
		var (
			s         Sample
			acc, name sql.NullString
		)
		if err := rows.Scan(&s.ID, &acc, &name); err != nil {
			_ = rows.Close()
			return nil, job.NewError("get project samples", job.ErrStorage, err)
		}
		s.Accession, s.Name = acc.String, name.String
		out = append(out, s)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, job.NewError("get project samples", job.ErrStorage, err)
	}

	// Rows are closed before the per-sample queries so a single-connection
	// pool does not deadlock.
	for i := range out {
		if out[i].Attributes, err = r.attributes(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Files, err = r.files(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLRepository) attributes(ctx context.Context, sampleID string) ([]Attribute, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.type, a.attr_value
		FROM sample_attr a
		JOIN sample_attr_type t ON t.sample_attr_type_id = a.sample_attr_type_id
		WHERE a.sample_id = ?
		ORDER BY a.sample_attr_id`, sampleID)
	if err != nil {
		return nil, job.NewError("get sample attributes", job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Attribute
	for rows.Next() {
		var (
			a     Attribute
			value sql.NullString
		)
		if err := rows.Scan(&a.Type, &value); err != nil {
			return nil, job.NewError("get sample attributes", job.ErrStorage, err)
		}
		a.Value = value.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, job.NewError("get sample attributes", job.ErrStorage, err)
	}
	return out, nil
}

func (r *SQLRepository) files(ctx context.Context, sampleID string) ([]File, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.sample_file_id, f.file, t.type
		FROM sample_file f
		LEFT JOIN sample_file_type t ON t.sample_file_type_id = f.sample_file_type_id
		WHERE f.sample_id = ?
		ORDER BY f.sample_file_id`, sampleID)
	if err != nil {
		return nil, job.NewError("get sample files", job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []File
	for rows.Next() {
		var (
			f     File
			ftype sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Path, &ftype); err != nil {
			return nil, job.NewError("get sample files", job.ErrStorage, err)
		}
		f.Type = ftype.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, job.NewError("get sample files", job.ErrStorage, err)
	}
	return out, nil
}

// UpdateProjectVisibility records the archive accession and visibility.
func (r *SQLRepository) UpdateProjectVisibility(ctx context.Context, projectID string, v Visibility) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE project SET private = ?, ebi_accno = ? WHERE project_id = ?`, v.Private, v.Accession, projectID)
	if err != nil {
		return job.NewError("update project visibility", job.ErrStorage, err)
	}
	return requireRow(res, "update project visibility", projectID)
}

// SetPublicationStatus records submission progress on the project.
func (r *SQLRepository) SetPublicationStatus(ctx context.Context, projectID string, status PublicationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE project SET publication_status = ? WHERE project_id = ?`, int(status), projectID)
	if err != nil {
		return job.NewError("set publication status", job.ErrStorage, err)
	}
	return requireRow(res, "set publication status", projectID)
}

// ListEligibleProjects returns projects marked pending for submission.
// Projects with an active job are filtered by the scheduler.
func (r *SQLRepository) ListEligibleProjects(ctx context.Context) ([]EligibleProject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.project_id, u.user_name
		FROM project p
		LEFT JOIN `+"`user`"+` u ON u.user_id = p.ebi_submitter_id
		WHERE p.publication_status = ?
		ORDER BY p.project_id`, int(PublicationPending))
	if err != nil {
		return nil, job.NewError("list eligible projects", job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []EligibleProject
	for rows.Next() {
		var (
			e     EligibleProject
			owner sql.NullString
		)
		if err := rows.Scan(&e.ID, &owner); err != nil {
			return nil, job.NewError("list eligible projects", job.ErrStorage, err)
		}
		e.Owner = owner.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, job.NewError("list eligible projects", job.ErrStorage, err)
	}
	return out, nil
}

func requireRow(res sql.Result, op, projectID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return job.NewError(op, job.ErrStorage, err)
	}
	if n == 0 {
		return job.NewError(op, job.ErrNotFound, fmt.Errorf("project %s", projectID))
	}
	return nil
}
