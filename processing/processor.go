// Package processing exposes the dataset transforms and workspace file
// operations behind labkit permission and role gates.
//
// Every method takes the caller's session token first. A missing or unknown
// token yields *labkit.AuthenticationError, a session lacking the required
// grant yields *labkit.AuthorizationError; in both cases the operation does
// not run.
package processing

import (
	"context"

	"github.com/go-gota/gota/dataframe"
	"go.uber.org/zap"

	"github.com/MrEthical07/labkit"
	"github.com/MrEthical07/labkit/dataset"
	"github.com/MrEthical07/labkit/workspace"
)

// Operation names, as they appear in errors and audit records.
const (
	OpCleanColumnNames = "clean_column_names"
	OpHandleMissing    = "handle_missing_values"
	OpDetectOutliers   = "detect_outliers"
	OpFeatureSummary   = "create_feature_summary"
	OpDescribe         = "describe_dataframe"
	OpLoad             = "load_dataframe"
	OpSave             = "save_dataframe"
	OpDelete           = "delete_data"
	OpPurgeProcessed   = "purge_processed"
)

type frame = dataframe.DataFrame

type missingInput struct {
	df   frame
	opts dataset.MissingOptions
}

type outlierInput struct {
	df   frame
	opts dataset.OutlierOptions
}

type fileRef struct {
	name string
	kind workspace.DataKind
}

type saveInput struct {
	df frame
	fileRef
}

// Processor runs gated data operations against one workspace.
type Processor struct {
	layout *workspace.Layout
	logger *zap.Logger

	cleanColumns  labkit.Guarded[frame, frame]
	handleMissing labkit.Guarded[missingInput, frame]
	outliers      labkit.Guarded[outlierInput, frame]
	summary       labkit.Guarded[frame, []dataset.ColumnSummary]
	describe      labkit.Guarded[frame, dataset.Info]
	load          labkit.Guarded[fileRef, frame]
	save          labkit.Guarded[saveInput, string]
	remove        labkit.Guarded[fileRef, struct{}]
	purge         labkit.Guarded[struct{}, int]
}

// New binds a Processor to engine and layout. A nil logger discards output.
func New(engine *labkit.Engine, layout *workspace.Layout, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{layout: layout, logger: logger.Named("processing")}

	p.cleanColumns = labkit.WithPermission(engine, OpCleanColumnNames, labkit.PermRead,
		func(_ context.Context, df frame) (frame, error) {
			return dataset.CleanColumnNames(df)
		})
	p.handleMissing = labkit.WithPermission(engine, OpHandleMissing, labkit.PermProcess,
		func(_ context.Context, in missingInput) (frame, error) {
			return dataset.HandleMissing(in.df, in.opts)
		})
	p.outliers = labkit.WithPermission(engine, OpDetectOutliers, labkit.PermRead,
		func(_ context.Context, in outlierInput) (frame, error) {
			return dataset.DetectOutliers(in.df, in.opts)
		})
	p.summary = labkit.WithPermission(engine, OpFeatureSummary, labkit.PermRead,
		func(_ context.Context, df frame) ([]dataset.ColumnSummary, error) {
			return dataset.Summarize(df), nil
		})
	p.describe = labkit.WithPermission(engine, OpDescribe, labkit.PermRead,
		func(_ context.Context, df frame) (dataset.Info, error) {
			return dataset.Describe(df), nil
		})
	p.load = labkit.WithPermission(engine, OpLoad, labkit.PermRead, p.loadFrame)
	p.save = labkit.WithPermission(engine, OpSave, labkit.PermWrite, p.saveFrame)
	p.remove = labkit.WithPermission(engine, OpDelete, labkit.PermDelete, p.removeFile)
	p.purge = labkit.WithRole(engine, OpPurgeProcessed, labkit.RoleAdmin, p.purgeProcessed)

	return p
}

// CleanColumnNames normalizes column names. Requires "read".
func (p *Processor) CleanColumnNames(ctx context.Context, token string, df dataframe.DataFrame) (dataframe.DataFrame, error) {
	return p.cleanColumns(ctx, token, df)
}

// HandleMissing drops or fills missing cells. Requires "process".
func (p *Processor) HandleMissing(ctx context.Context, token string, df dataframe.DataFrame, opts dataset.MissingOptions) (dataframe.DataFrame, error) {
	return p.handleMissing(ctx, token, missingInput{df: df, opts: opts})
}

// DetectOutliers flags outlying values. Requires "read".
func (p *Processor) DetectOutliers(ctx context.Context, token string, df dataframe.DataFrame, opts dataset.OutlierOptions) (dataframe.DataFrame, error) {
	return p.outliers(ctx, token, outlierInput{df: df, opts: opts})
}

// FeatureSummary describes each column. Requires "read".
func (p *Processor) FeatureSummary(ctx context.Context, token string, df dataframe.DataFrame) ([]dataset.ColumnSummary, error) {
	return p.summary(ctx, token, df)
}

// Describe returns whole-frame figures. Requires "read".
func (p *Processor) Describe(ctx context.Context, token string, df dataframe.DataFrame) (dataset.Info, error) {
	return p.describe(ctx, token, df)
}

// Load reads a table from the workspace. Requires "read".
func (p *Processor) Load(ctx context.Context, token, name string, kind workspace.DataKind) (dataframe.DataFrame, error) {
	return p.load(ctx, token, fileRef{name: name, kind: kind})
}

// Save writes a table into the workspace and returns its path. Requires "write".
func (p *Processor) Save(ctx context.Context, token string, df dataframe.DataFrame, name string, kind workspace.DataKind) (string, error) {
	return p.save(ctx, token, saveInput{df: df, fileRef: fileRef{name: name, kind: kind}})
}

// Delete removes one data file. Requires "delete".
func (p *Processor) Delete(ctx context.Context, token, name string, kind workspace.DataKind) error {
	_, err := p.remove(ctx, token, fileRef{name: name, kind: kind})
	return err
}

// PurgeProcessed removes every file under data/processed. Requires the
// admin role.
func (p *Processor) PurgeProcessed(ctx context.Context, token string) (int, error) {
	return p.purge(ctx, token, struct{}{})
}

func (p *Processor) loadFrame(_ context.Context, ref fileRef) (frame, error) {
	return p.layout.LoadFrame(ref.name, ref.kind)
}

func (p *Processor) saveFrame(ctx context.Context, in saveInput) (string, error) {
	path, err := p.layout.SaveFrame(in.df, in.name, in.kind)
	if err != nil {
		return "", err
	}
	p.logger.Info("dataframe saved", actor(ctx, zap.String("path", path), zap.Int("rows", in.df.Nrow()))...)
	return path, nil
}

func (p *Processor) removeFile(ctx context.Context, ref fileRef) (struct{}, error) {
	if err := p.layout.RemoveData(ref.name, ref.kind); err != nil {
		return struct{}{}, err
	}
	p.logger.Info("data file deleted", actor(ctx, zap.String("name", ref.name), zap.String("kind", string(ref.kind)))...)
	return struct{}{}, nil
}

func (p *Processor) purgeProcessed(ctx context.Context, _ struct{}) (int, error) {
	n, err := p.layout.PurgeData(workspace.Processed)
	if err != nil {
		return n, err
	}
	p.logger.Warn("processed data purged", actor(ctx, zap.Int("files", n))...)
	return n, nil
}

// actor prepends the authorized user to fields.
func actor(ctx context.Context, fields ...zap.Field) []zap.Field {
	if info, ok := labkit.SessionFromContext(ctx); ok {
		return append([]zap.Field{zap.String("user_id", info.UserID), zap.String("role", info.Role)}, fields...)
	}
	return fields
}
