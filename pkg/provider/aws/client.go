package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/driftbyte/autosnap/pkg/logging"
	"github.com/driftbyte/autosnap/pkg/provider"
)

// ec2API is the slice of the EC2 surface the client needs. The paginator
// client interfaces come from the SDK, so the real *ec2.Client and test fakes
// both satisfy it.
type ec2API interface {
	ec2.DescribeVolumesAPIClient
	ec2.DescribeSnapshotsAPIClient
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// Client adapts EC2 to the engine's provider surface. Every call goes through
// the shared bounded retry wrapper; the SDK's own retryer is disabled in
// buildAWSConfig so retry policy lives in one place.
type Client struct {
	log   *logging.Logger
	api   ec2API
	retry provider.RetryConfig
}

type Config struct {
	Region          string
	CredentialsFile string
	Retry           provider.RetryConfig
}

func NewClient(ctx context.Context, log *logging.Logger, cfg Config) (*Client, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building aws config: %w", err)
	}
	return &Client{
		log:   log.WithField("provider", "aws"),
		api:   ec2.NewFromConfig(awsCfg),
		retry: cfg.Retry,
	}, nil
}

func newClientWithAPI(log *logging.Logger, api ec2API, retry provider.RetryConfig) *Client {
	return &Client{log: log, api: api, retry: retry}
}

// ListVolumes returns all volumes matching the tag filter, fully paginated.
func (c *Client) ListVolumes(ctx context.Context, f provider.VolumeFilter) ([]provider.Volume, error) {
	filters := []ec2types.Filter{{
		Name:   lo.ToPtr("tag:" + f.TagKey),
		Values: []string{f.TagValue},
	}}
	if f.AttachedOnly {
		filters = append(filters, ec2types.Filter{
			Name:   lo.ToPtr("attachment.status"),
			Values: []string{string(ec2types.VolumeAttachmentStateAttached)},
		})
	}

	var out []provider.Volume
	p := ec2.NewDescribeVolumesPaginator(c.api, &ec2.DescribeVolumesInput{Filters: filters})
	for p.HasMorePages() {
		page, err := provider.Retry(ctx, c.log, c.retry, "DescribeVolumes", func(ctx context.Context) (*ec2.DescribeVolumesOutput, error) {
			return p.NextPage(ctx)
		})
		if err != nil {
			return nil, err
		}
		for _, v := range page.Volumes {
			out = append(out, toVolume(v))
		}
	}
	return out, nil
}

// ListSnapshots returns all snapshots owned by the caller matching the
// filter, fully paginated. Deletion decisions need the whole set, so the
// result is materialized, never lazy.
func (c *Client) ListSnapshots(ctx context.Context, f provider.SnapshotFilter) ([]provider.Snapshot, error) {
	var filters []ec2types.Filter
	if f.VolumeID != "" {
		filters = append(filters, ec2types.Filter{
			Name:   lo.ToPtr("volume-id"),
			Values: []string{f.VolumeID},
		})
	}
	for _, key := range sortedKeys(f.Tags) {
		filters = append(filters, ec2types.Filter{
			Name:   lo.ToPtr("tag:" + key),
			Values: []string{f.Tags[key]},
		})
	}

	var out []provider.Snapshot
	p := ec2.NewDescribeSnapshotsPaginator(c.api, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  filters,
	})
	for p.HasMorePages() {
		page, err := provider.Retry(ctx, c.log, c.retry, "DescribeSnapshots", func(ctx context.Context) (*ec2.DescribeSnapshotsOutput, error) {
			return p.NextPage(ctx)
		})
		if err != nil {
			return nil, err
		}
		for _, s := range page.Snapshots {
			out = append(out, toSnapshot(s))
		}
	}
	return out, nil
}

func (c *Client) CreateSnapshot(ctx context.Context, volumeID, description string) (provider.Snapshot, error) {
	out, err := provider.Retry(ctx, c.log, c.retry, "CreateSnapshot", func(ctx context.Context) (*ec2.CreateSnapshotOutput, error) {
		return c.api.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
			VolumeId:    lo.ToPtr(volumeID),
			Description: lo.ToPtr(description),
		})
	})
	if err != nil {
		return provider.Snapshot{}, err
	}
	snap := provider.Snapshot{
		ID:       lo.FromPtr(out.SnapshotId),
		VolumeID: lo.FromPtr(out.VolumeId),
	}
	if out.StartTime != nil {
		snap.StartTime = *out.StartTime
	}
	return snap, nil
}

func (c *Client) TagResource(ctx context.Context, id string, tags map[string]string) error {
	ec2Tags := lo.Map(sortedKeys(tags), func(key string, _ int) ec2types.Tag {
		return ec2types.Tag{Key: lo.ToPtr(key), Value: lo.ToPtr(tags[key])}
	})
	_, err := provider.Retry(ctx, c.log, c.retry, "CreateTags", func(ctx context.Context) (*ec2.CreateTagsOutput, error) {
		return c.api.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{id},
			Tags:      ec2Tags,
		})
	})
	return err
}

func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	_, err := provider.Retry(ctx, c.log, c.retry, "DeleteSnapshot", func(ctx context.Context) (*ec2.DeleteSnapshotOutput, error) {
		return c.api.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: lo.ToPtr(id)})
	})
	return err
}

// DescribeVolumeAttachment reports whether the volume is currently attached
// to any instance.
func (c *Client) DescribeVolumeAttachment(ctx context.Context, volumeID string) (bool, error) {
	out, err := provider.Retry(ctx, c.log, c.retry, "DescribeVolumes", func(ctx context.Context) (*ec2.DescribeVolumesOutput, error) {
		return c.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}})
	})
	if err != nil {
		return false, err
	}
	if len(out.Volumes) == 0 {
		return false, &provider.Error{Code: "InvalidVolume.NotFound", Message: fmt.Sprintf("volume %s not found", volumeID)}
	}
	return isAttached(out.Volumes[0]), nil
}

func toVolume(v ec2types.Volume) provider.Volume {
	tags := toTagMap(v.Tags)
	return provider.Volume{
		ID:       lo.FromPtr(v.VolumeId),
		Name:     tags["Name"],
		SizeGiB:  lo.FromPtr(v.Size),
		Tags:     tags,
		Attached: isAttached(v),
	}
}

func toSnapshot(s ec2types.Snapshot) provider.Snapshot {
	snap := provider.Snapshot{
		ID:       lo.FromPtr(s.SnapshotId),
		VolumeID: lo.FromPtr(s.VolumeId),
		Tags:     toTagMap(s.Tags),
	}
	if s.StartTime != nil {
		snap.StartTime = *s.StartTime
	}
	return snap
}

func isAttached(v ec2types.Volume) bool {
	for _, att := range v.Attachments {
		if att.State == ec2types.VolumeAttachmentStateAttached {
			return true
		}
	}
	return false
}

func toTagMap(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[lo.FromPtr(t.Key)] = lo.FromPtr(t.Value)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
