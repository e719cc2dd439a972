package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const nodeColumns = `id, name, group_id, root, host, address, active, auto_import, io_class,
	io_config, storage_type, max_total_gb, min_avail_gb, avail_gb, notes`

func scanNode(row rowScanner) (model.StorageNode, error) {
	var n model.StorageNode
	var root, host, address, ioClass, ioConfig, notes sql.NullString
	var maxTotal, avail sql.NullFloat64
	err := row.Scan(&n.ID, &n.Name, &n.GroupID, &root, &host, &address, &n.Active, &n.AutoImport,
		&ioClass, &ioConfig, &n.StorageType, &maxTotal, &n.MinAvailGB, &avail, &notes)
	if err != nil {
		return n, err
	}
	n.Root = root.String
	n.Host = host.String
	n.Address = address.String
	n.IOClass = ioClass.String
	n.IOConfig = ioConfig.String
	n.Notes = notes.String
	n.MaxTotalGB = maxTotal.Float64
	n.AvailGB = avail.Float64
	return n, nil
}

// GetOrCreateGroup returns the StorageGroup called name, creating it if needed.
func (s *Store) GetOrCreateGroup(ctx context.Context, name, notes string) (model.StorageGroup, error) {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	g := model.StorageGroup{Name: name}
	var n sql.NullString
	err := s.q.QueryRowContext(ctx, `SELECT id, notes FROM storage_group WHERE name = ?`, name).Scan(&g.ID, &n)
	if err == nil {
		g.Notes = n.String
		return g, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return g, err
	}
	err = s.q.QueryRowContext(ctx,
		`INSERT INTO storage_group (name, notes) VALUES (?, ?) RETURNING id`, name, nullString(notes)).Scan(&g.ID)
	if err != nil {
		return g, fmt.Errorf("insert storage_group %s: %w", name, err)
	}
	g.Notes = notes
	return g, nil
}

// UpsertNode creates or updates the StorageNode with n.Name and returns the
// stored row.
func (s *Store) UpsertNode(ctx context.Context, n model.StorageNode) (model.StorageNode, error) {
	unlock := s.lock()
	qctx, cancel := s.queryCtx(ctx)

	res, err := s.q.ExecContext(qctx, `
		UPDATE storage_node SET group_id = ?, root = ?, host = ?, address = ?, active = ?, auto_import = ?,
			io_class = ?, io_config = ?, storage_type = ?, max_total_gb = ?, min_avail_gb = ?, notes = ?
		WHERE name = ?`,
		n.GroupID, nullString(n.Root), nullString(n.Host), nullString(n.Address), n.Active, n.AutoImport,
		nullString(n.IOClass), nullString(n.IOConfig), n.StorageType, nullFloat(n.MaxTotalGB), n.MinAvailGB,
		nullString(n.Notes), n.Name)
	if err == nil {
		if affected, _ := res.RowsAffected(); affected == 0 {
			_, err = s.q.ExecContext(qctx, `
				INSERT INTO storage_node (name, group_id, root, host, address, active, auto_import,
					io_class, io_config, storage_type, max_total_gb, min_avail_gb, notes)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				n.Name, n.GroupID, nullString(n.Root), nullString(n.Host), nullString(n.Address), n.Active,
				n.AutoImport, nullString(n.IOClass), nullString(n.IOConfig), n.StorageType, nullFloat(n.MaxTotalGB),
				n.MinAvailGB, nullString(n.Notes))
		}
	}
	cancel()
	unlock()
	if err != nil {
		return n, fmt.Errorf("upsert storage_node %s: %w", n.Name, err)
	}
	return s.NodeByName(ctx, n.Name)
}

// NodeByName returns the StorageNode called name.
func (s *Store) NodeByName(ctx context.Context, name string) (model.StorageNode, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	n, err := scanNode(s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM storage_node WHERE name = ?`, name))
	return n, notFound(err)
}

// NodeByID returns the StorageNode with the given id.
func (s *Store) NodeByID(ctx context.Context, id int64) (model.StorageNode, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	n, err := scanNode(s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM storage_node WHERE id = ?`, id))
	return n, notFound(err)
}

func (s *Store) listNodes(ctx context.Context, where string, args ...any) ([]model.StorageNode, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM storage_node `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StorageNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListNodes returns every StorageNode.
func (s *Store) ListNodes(ctx context.Context) ([]model.StorageNode, error) {
	return s.listNodes(ctx, "")
}

// ActiveNodesOnHost returns the active nodes whose host is host.
func (s *Store) ActiveNodesOnHost(ctx context.Context, host string) ([]model.StorageNode, error) {
	return s.listNodes(ctx, "WHERE active AND host = ?", host)
}

// UpdateNodeAvail records the free space last measured on a node.
func (s *Store) UpdateNodeAvail(ctx context.Context, nodeID int64, availGB float64) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `UPDATE storage_node SET avail_gb = ? WHERE id = ?`, availGB, nodeID)
	return err
}

func scanAcq(row rowScanner) (model.ArchiveAcq, error) {
	var a model.ArchiveAcq
	var typeID, instID sql.NullInt64
	var comments sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &typeID, &instID, &comments); err != nil {
		return a, err
	}
	a.TypeID = typeID.Int64
	a.InstID = instID.Int64
	a.Comment = comments.String
	return a, nil
}

// AcqByName returns the acquisition called name.
func (s *Store) AcqByName(ctx context.Context, name string) (model.ArchiveAcq, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	a, err := scanAcq(s.q.QueryRowContext(ctx,
		`SELECT id, name, type_id, inst_id, comments FROM archive_acq WHERE name = ?`, name))
	return a, notFound(err)
}

// AcqByID returns the acquisition with the given id.
func (s *Store) AcqByID(ctx context.Context, id int64) (model.ArchiveAcq, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	a, err := scanAcq(s.q.QueryRowContext(ctx,
		`SELECT id, name, type_id, inst_id, comments FROM archive_acq WHERE id = ?`, id))
	return a, notFound(err)
}

// GetOrCreateAcq returns the acquisition called name and whether this call
// created it.
func (s *Store) GetOrCreateAcq(ctx context.Context, name string) (model.ArchiveAcq, bool, error) {
	acq, err := s.AcqByName(ctx, name)
	if err == nil {
		return acq, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return acq, false, err
	}

	defer s.lock()()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	acq = model.ArchiveAcq{Name: name}
	if err := s.q.QueryRowContext(qctx,
		`INSERT INTO archive_acq (name) VALUES (?) RETURNING id`, name).Scan(&acq.ID); err != nil {
		return acq, false, fmt.Errorf("insert archive_acq %s: %w", name, err)
	}
	return acq, true, nil
}

// UpdateAcq stores the type, instrument and comment of acq.
func (s *Store) UpdateAcq(ctx context.Context, acq model.ArchiveAcq) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `UPDATE archive_acq SET type_id = ?, inst_id = ?, comments = ? WHERE id = ?`,
		nullID(acq.TypeID), nullID(acq.InstID), nullString(acq.Comment), acq.ID)
	return err
}

const fileColumns = `f.id, f.acq_id, a.name, f.name, f.size_b, f.md5sum, f.registered, f.type_id`

func scanFile(row rowScanner) (model.ArchiveFile, error) {
	var f model.ArchiveFile
	var size, typeID sql.NullInt64
	var md5 sql.NullString
	var registered sql.NullTime
	if err := row.Scan(&f.ID, &f.AcqID, &f.AcqName, &f.Name, &size, &md5, &registered, &typeID); err != nil {
		return f, err
	}
	f.SizeB = size.Int64
	f.MD5Sum = md5.String
	f.Registered = registered.Time
	f.TypeID = typeID.Int64
	return f, nil
}

// FileByID returns the file with the given id.
func (s *Store) FileByID(ctx context.Context, id int64) (model.ArchiveFile, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	f, err := scanFile(s.q.QueryRowContext(ctx, `SELECT `+fileColumns+`
		FROM archive_file f JOIN archive_acq a ON a.id = f.acq_id WHERE f.id = ?`, id))
	return f, notFound(err)
}

// FileByPath returns the file at acq/name.
func (s *Store) FileByPath(ctx context.Context, relPath string) (model.ArchiveFile, error) {
	acqName, name := path.Split(path.Clean(relPath))
	acqName = strings.TrimSuffix(acqName, "/")
	if acqName == "" || name == "" {
		return model.ArchiveFile{}, fmt.Errorf("file path %q has no acquisition: %w", relPath, ErrNotFound)
	}

	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	f, err := scanFile(s.q.QueryRowContext(ctx, `SELECT `+fileColumns+`
		FROM archive_file f JOIN archive_acq a ON a.id = f.acq_id WHERE a.name = ? AND f.name = ?`, acqName, name))
	return f, notFound(err)
}

// GetOrCreateFile returns the file called name in acq, creating it with the
// given size and checksum if needed. The bool reports creation.
func (s *Store) GetOrCreateFile(ctx context.Context, acq model.ArchiveAcq, name string, size int64, md5sum string) (model.ArchiveFile, bool, error) {
	f, err := s.FileByPath(ctx, path.Join(acq.Name, name))
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return f, false, err
	}

	defer s.lock()()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	f = model.ArchiveFile{
		AcqID:      acq.ID,
		AcqName:    acq.Name,
		Name:       name,
		SizeB:      size,
		MD5Sum:     md5sum,
		Registered: time.Now().UTC(),
	}
	if err := s.q.QueryRowContext(qctx,
		`INSERT INTO archive_file (acq_id, name, size_b, md5sum, registered) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		f.AcqID, f.Name, f.SizeB, nullString(f.MD5Sum), f.Registered).Scan(&f.ID); err != nil {
		return f, false, fmt.Errorf("insert archive_file %s: %w", f.Path(), err)
	}
	return f, true, nil
}

// SetFileType stores the FileType of a file.
func (s *Store) SetFileType(ctx context.Context, fileID, typeID int64) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `UPDATE archive_file SET type_id = ? WHERE id = ?`, nullID(typeID), fileID)
	return err
}

const copyColumns = `c.id, c.file_id, c.node_id, c.has_file, c.wants_file, c.ready, c.size_b, c.last_update`

func scanCopy(row rowScanner, withFile bool) (model.FileCopy, error) {
	var c model.FileCopy
	var size sql.NullInt64
	var last sql.NullTime
	dest := []any{&c.ID, &c.FileID, &c.NodeID, &c.HasFile, &c.WantsFile, &c.Ready, &size, &last}

	var fsize, ftype sql.NullInt64
	var fmd5 sql.NullString
	var fregistered sql.NullTime
	if withFile {
		dest = append(dest, &c.File.ID, &c.File.AcqID, &c.File.AcqName, &c.File.Name, &fsize, &fmd5, &fregistered, &ftype)
	}
	if err := row.Scan(dest...); err != nil {
		return c, err
	}
	c.SizeB = size.Int64
	c.LastUpdate = last.Time
	if withFile {
		c.File.SizeB = fsize.Int64
		c.File.MD5Sum = fmd5.String
		c.File.Registered = fregistered.Time
		c.File.TypeID = ftype.Int64
	}
	return c, nil
}

// CopyOf returns the copy record of a file on a node.
func (s *Store) CopyOf(ctx context.Context, fileID, nodeID int64) (model.FileCopy, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	c, err := scanCopy(s.q.QueryRowContext(ctx, `SELECT `+copyColumns+`, `+fileColumns+`
		FROM archive_file_copy c
		JOIN archive_file f ON f.id = c.file_id
		JOIN archive_acq a ON a.id = f.acq_id
		WHERE c.file_id = ? AND c.node_id = ?`, fileID, nodeID), true)
	return c, notFound(err)
}

// NodeHasFile reports whether the node holds a good copy of relPath.
func (s *Store) NodeHasFile(ctx context.Context, nodeID int64, relPath string) (bool, error) {
	f, err := s.FileByPath(ctx, relPath)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c, err := s.CopyOf(ctx, f.ID, nodeID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.HasFile == model.HasFileYes, nil
}

// NodeTracksFile reports whether the node has a copy record for relPath
// in any state other than removed. Good, suspect and corrupt copies all
// count.
func (s *Store) NodeTracksFile(ctx context.Context, nodeID int64, relPath string) (bool, error) {
	f, err := s.FileByPath(ctx, relPath)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c, err := s.CopyOf(ctx, f.ID, nodeID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.HasFile != model.HasFileNo, nil
}

// UpsertCopy creates or updates the copy record for (c.FileID, c.NodeID).
// LastUpdate is set to now.
func (s *Store) UpsertCopy(ctx context.Context, c model.FileCopy) (model.FileCopy, error) {
	defer s.lock()()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	c.LastUpdate = time.Now().UTC()
	res, err := s.q.ExecContext(qctx, `
		UPDATE archive_file_copy SET has_file = ?, wants_file = ?, ready = ?, size_b = ?, last_update = ?
		WHERE file_id = ? AND node_id = ?`,
		c.HasFile, c.WantsFile, c.Ready, c.SizeB, c.LastUpdate, c.FileID, c.NodeID)
	if err != nil {
		return c, fmt.Errorf("update archive_file_copy: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		err = s.q.QueryRowContext(qctx,
			`SELECT id FROM archive_file_copy WHERE file_id = ? AND node_id = ?`, c.FileID, c.NodeID).Scan(&c.ID)
		return c, err
	}
	err = s.q.QueryRowContext(qctx, `
		INSERT INTO archive_file_copy (file_id, node_id, has_file, wants_file, ready, size_b, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		c.FileID, c.NodeID, c.HasFile, c.WantsFile, c.Ready, c.SizeB, c.LastUpdate).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("insert archive_file_copy: %w", err)
	}
	return c, nil
}

// SetCopyState updates the has/wants flags of a copy and bumps last_update.
func (s *Store) SetCopyState(ctx context.Context, copyID int64, hasFile, wantsFile string, ready bool) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx,
		`UPDATE archive_file_copy SET has_file = ?, wants_file = ?, ready = ?, last_update = ? WHERE id = ?`,
		hasFile, wantsFile, ready, time.Now().UTC(), copyID)
	return err
}

// CopiesToDelete lists copies on a node that are present but no longer wanted.
func (s *Store) CopiesToDelete(ctx context.Context, nodeID int64) ([]model.FileCopy, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+copyColumns+`, `+fileColumns+`
		FROM archive_file_copy c
		JOIN archive_file f ON f.id = c.file_id
		JOIN archive_acq a ON a.id = f.acq_id
		WHERE c.node_id = ? AND c.wants_file = 'N' AND c.has_file <> 'N'
		ORDER BY c.id`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileCopy
	for rows.Next() {
		c, err := scanCopy(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CopiesOnNode counts the good copies held by a node and their total size.
func (s *Store) CopiesOnNode(ctx context.Context, nodeID int64) (count int64, bytes int64, err error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var total sql.NullInt64
	err = s.q.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(size_b) FROM archive_file_copy WHERE node_id = ? AND has_file = 'Y'`, nodeID).
		Scan(&count, &total)
	return count, total.Int64, err
}
