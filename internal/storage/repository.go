package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

// Single-table key layout. EXTREF pointer items let status queries resolve a
// video by any external reference and double as the uniqueness backstop for
// concurrent webhook creates.
const (
	videoPKPrefix  = "VIDEO#"
	uploadPKPrefix = "UPLOAD#"
	extRefPKPrefix = "EXTREF#"
	metadataSK     = "METADATA"
	refSK          = "REF"
	orgGSIPrefix   = "ORG#"
	gsi1Name       = "GSI1"
)

// RefPointer is the EXTREF item resolving an external reference to a row.
type RefPointer struct {
	PK       string `dynamodbav:"pk"`
	SK       string `dynamodbav:"sk"`
	RecordID string `dynamodbav:"record_id"`
	Pending  bool   `dynamodbav:"pending"`
}

type videoItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	GSI1PK     string `dynamodbav:"gsi1pk"`
	GSI1SK     string `dynamodbav:"gsi1sk"`
	RecordType string `dynamodbav:"record_type"`
	models.Video
}

type pendingItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	RecordType string `dynamodbav:"record_type"`
	models.PendingUpload
}

// Repository stores videos, pending uploads, and external-reference pointers
// in a single DynamoDB table.
type Repository struct {
	client    *dynamodb.Client
	tableName string
}

// NewRepository creates a Repository from an existing DynamoDB client.
func NewRepository(client *dynamodb.Client, tableName string) *Repository {
	return &Repository{
		client:    client,
		tableName: tableName,
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreatePendingUpload stores a new pending upload. Fails with ErrConflict if
// a record with the same id already exists.
func (r *Repository) CreatePendingUpload(ctx context.Context, pu *models.PendingUpload) error {
	now := nowRFC3339()
	pu.CreatedAt = now
	pu.UpdatedAt = now

	item, err := attributevalue.MarshalMap(pendingItem{
		PK:            uploadPKPrefix + pu.ID,
		SK:            metadataSK,
		RecordType:    "pending",
		PendingUpload: *pu,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pending upload: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: pending upload %s", models.ErrConflict, pu.ID)
		}
		return fmt.Errorf("failed to create pending upload: %w", err)
	}

	return nil
}

// GetPendingUpload retrieves a pending upload by id.
func (r *Repository) GetPendingUpload(ctx context.Context, id string) (*models.PendingUpload, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(uploadPKPrefix+id, metadataSK),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending upload: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrNotFound
	}

	var item pendingItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending upload: %w", err)
	}

	return &item.PendingUpload, nil
}

// AttachPendingRefs records the managed provider's upload and asset handles
// on a pending upload and writes the matching EXTREF pointers.
func (r *Repository) AttachPendingRefs(ctx context.Context, id, uploadRef, assetRef string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              itemKey(uploadPKPrefix+id, metadataSK),
		UpdateExpression: aws.String("SET external_upload_ref = :upload_ref, external_asset_ref = :asset_ref, updated_at = :updated_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":upload_ref": &types.AttributeValueMemberS{Value: uploadRef},
			":asset_ref":  &types.AttributeValueMemberS{Value: assetRef},
			":updated_at": &types.AttributeValueMemberS{Value: nowRFC3339()},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to attach refs: %w", err)
	}

	for _, ref := range []string{uploadRef, assetRef} {
		if ref == "" {
			continue
		}
		if err := r.putRefPointer(ctx, ref, id, true); err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) putRefPointer(ctx context.Context, ref, recordID string, pending bool) error {
	item, err := attributevalue.MarshalMap(RefPointer{
		PK:       extRefPKPrefix + ref,
		SK:       refSK,
		RecordID: recordID,
		Pending:  pending,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ref pointer: %w", err)
	}

	// A pointer may already exist for the same record (re-delivery); only a
	// pointer owned by a different record is a conflict.
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk) OR record_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: recordID},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: external reference %s", models.ErrConflict, ref)
		}
		return fmt.Errorf("failed to put ref pointer: %w", err)
	}

	return nil
}

// CreateVideo stores a video directly (the webhook fallback path). Fails with
// ErrConflict if the id or an external reference is already taken.
func (r *Repository) CreateVideo(ctx context.Context, v *models.Video) error {
	now := nowRFC3339()
	if v.CreatedAt == "" {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	writes, err := r.videoWrites(v, false)
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("%w: video %s", models.ErrConflict, v.ID)
		}
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

// PromotePendingUpload atomically replaces the pending upload with a ready
// Video sharing its id. A concurrent reader never observes both or neither.
func (r *Repository) PromotePendingUpload(ctx context.Context, v *models.Video) error {
	now := nowRFC3339()
	if v.CreatedAt == "" {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	writes, err := r.videoWrites(v, true)
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("%w: video %s", models.ErrConflict, v.ID)
		}
		return fmt.Errorf("failed to promote pending upload: %w", err)
	}

	return nil
}

// videoWrites builds the transactional write set for a new video: the video
// item, optionally the pending-upload delete, and EXTREF pointers guarded
// against ownership by another record.
func (r *Repository) videoWrites(v *models.Video, deletePending bool) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(videoItem{
		PK:         videoPKPrefix + v.ID,
		SK:         metadataSK,
		GSI1PK:     orgGSIPrefix + v.OrganizationID,
		GSI1SK:     v.CreatedAt + "#" + v.ID,
		RecordType: "video",
		Video:      *v,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal video: %w", err)
	}

	writes := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			},
		},
	}

	if deletePending {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       itemKey(uploadPKPrefix+v.ID, metadataSK),
			},
		})
	}

	for _, ref := range []string{v.ExternalUploadRef, v.ExternalAssetRef} {
		if ref == "" {
			continue
		}
		ptr, err := attributevalue.MarshalMap(RefPointer{
			PK:       extRefPKPrefix + ref,
			SK:       refSK,
			RecordID: v.ID,
			Pending:  false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ref pointer: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                ptr,
				ConditionExpression: aws.String("attribute_not_exists(pk) OR record_id = :rid"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":rid": &types.AttributeValueMemberS{Value: v.ID},
				},
			},
		})
	}

	return writes, nil
}

// GetVideo retrieves a video by id.
func (r *Repository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(videoPKPrefix+id, metadataSK),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrNotFound
	}

	var item videoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video: %w", err)
	}

	return &item.Video, nil
}

// UpdateVideoPlayback updates asset, playback, duration, and status fields of
// an existing video without recreating it. Used when a webhook or callback
// matches an already-promoted video.
func (r *Repository) UpdateVideoPlayback(ctx context.Context, v *models.Video) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(videoPKPrefix+v.ID, metadataSK),
		UpdateExpression: aws.String(`
			SET #status = :status,
			    updated_at = :updated_at,
			    duration_seconds = :duration,
			    external_asset_ref = :asset_ref,
			    external_playback_ref = :playback_ref,
			    playback_url = :playback_url,
			    thumbnail_url = :thumbnail_url,
			    playback_manifest_key = :manifest_key,
			    thumbnail_key = :thumbnail_key
		`),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":        &types.AttributeValueMemberS{Value: string(v.Status)},
			":updated_at":    &types.AttributeValueMemberS{Value: nowRFC3339()},
			":duration":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v.DurationSeconds)},
			":asset_ref":     &types.AttributeValueMemberS{Value: v.ExternalAssetRef},
			":playback_ref":  &types.AttributeValueMemberS{Value: v.ExternalPlaybackRef},
			":playback_url":  &types.AttributeValueMemberS{Value: v.PlaybackURL},
			":thumbnail_url": &types.AttributeValueMemberS{Value: v.ThumbnailURL},
			":manifest_key":  &types.AttributeValueMemberS{Value: v.PlaybackManifestKey},
			":thumbnail_key": &types.AttributeValueMemberS{Value: v.ThumbnailKey},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to update video playback: %w", err)
	}

	if v.ExternalAssetRef != "" {
		if err := r.putRefPointer(ctx, v.ExternalAssetRef, v.ID, false); err != nil {
			return err
		}
	}

	return nil
}

// UpdateVideoStatus transitions a video's status. Transitions out of a
// terminal status are rejected by condition; repeated identical signals are
// treated as success so failure and cancel paths stay idempotent.
func (r *Repository) UpdateVideoStatus(ctx context.Context, id string, status models.VideoStatus, errorMessage string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              itemKey(videoPKPrefix+id, metadataSK),
		UpdateExpression: aws.String("SET #status = :status, updated_at = :updated_at, error_message = :error"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(status)},
			":updated_at": &types.AttributeValueMemberS{Value: nowRFC3339()},
			":error":      &types.AttributeValueMemberS{Value: errorMessage},
			":err_state":  &types.AttributeValueMemberS{Value: string(models.StatusError)},
			":del_state":  &types.AttributeValueMemberS{Value: string(models.StatusDeleted)},
		},
		ConditionExpression: aws.String("attribute_exists(pk) AND #status <> :err_state AND #status <> :del_state"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// Already terminal (or missing): re-read to distinguish.
			if _, getErr := r.GetVideo(ctx, id); getErr != nil {
				return getErr
			}
			return nil
		}
		return fmt.Errorf("failed to update video status: %w", err)
	}

	return nil
}

// DeletePendingUpload removes a pending-upload row and its EXTREF pointers.
// Missing rows are success so delete paths stay idempotent.
func (r *Repository) DeletePendingUpload(ctx context.Context, pu *models.PendingUpload) error {
	return r.deleteRecord(ctx, uploadPKPrefix+pu.ID, []string{pu.ExternalUploadRef, pu.ExternalAssetRef})
}

// DeleteVideo removes a video row and its EXTREF pointers. Missing rows are
// success so delete paths stay idempotent.
func (r *Repository) DeleteVideo(ctx context.Context, v *models.Video) error {
	return r.deleteRecord(ctx, videoPKPrefix+v.ID, []string{v.ExternalUploadRef, v.ExternalAssetRef})
}

func (r *Repository) deleteRecord(ctx context.Context, pk string, refs []string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(pk, metadataSK),
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	for _, ref := range refs {
		if ref == "" {
			continue
		}
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key:       itemKey(extRefPKPrefix+ref, refSK),
		})
		if err != nil {
			return fmt.Errorf("failed to delete ref pointer: %w", err)
		}
	}

	return nil
}

// LookupByExtRef resolves an external reference to its owning record.
func (r *Repository) LookupByExtRef(ctx context.Context, ref string) (*RefPointer, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(extRefPKPrefix+ref, refSK),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up external reference: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrNotFound
	}

	var ptr RefPointer
	if err := attributevalue.UnmarshalMap(result.Item, &ptr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ref pointer: %w", err)
	}

	return &ptr, nil
}

// FindVideoByExtRef returns the video owning an external reference, or
// ErrNotFound when the reference is unknown or owned by a pending upload.
func (r *Repository) FindVideoByExtRef(ctx context.Context, ref string) (*models.Video, error) {
	ptr, err := r.LookupByExtRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ptr.Pending {
		return nil, models.ErrNotFound
	}
	return r.GetVideo(ctx, ptr.RecordID)
}

// FindPendingByExtRef returns the pending upload owning an external
// reference, or ErrNotFound.
func (r *Repository) FindPendingByExtRef(ctx context.Context, ref string) (*models.PendingUpload, error) {
	ptr, err := r.LookupByExtRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ptr.Pending {
		return nil, models.ErrNotFound
	}
	return r.GetPendingUpload(ctx, ptr.RecordID)
}

// Resolve locates a video or pending upload by id or by any known external
// reference. Videos win over pending uploads; direct ids win over pointers.
func (r *Repository) Resolve(ctx context.Context, identifier string) (*models.Video, *models.PendingUpload, error) {
	if v, err := r.GetVideo(ctx, identifier); err == nil {
		return v, nil, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, nil, err
	}

	if pu, err := r.GetPendingUpload(ctx, identifier); err == nil {
		return nil, pu, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, nil, err
	}

	ptr, err := r.LookupByExtRef(ctx, identifier)
	if err != nil {
		return nil, nil, err
	}
	if ptr.Pending {
		pu, err := r.GetPendingUpload(ctx, ptr.RecordID)
		if err != nil {
			return nil, nil, err
		}
		return nil, pu, nil
	}

	v, err := r.GetVideo(ctx, ptr.RecordID)
	if err != nil {
		return nil, nil, err
	}
	return v, nil, nil
}

// ListVideos returns an organization's videos, newest first.
func (r *Repository) ListVideos(ctx context.Context, organizationID string, limit int32) ([]models.Video, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: orgGSIPrefix + organizationID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	var items []videoItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal videos: %w", err)
	}

	videos := make([]models.Video, 0, len(items))
	for _, item := range items {
		videos = append(videos, item.Video)
	}

	return videos, nil
}

// DescribeTable verifies the table is reachable. Used by health checks.
func (r *Repository) DescribeTable(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table: %w", err)
	}
	return nil
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}
