package dynamodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	streamsattr "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2streams "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// streamWatch tails the table's DynamoDB stream for one user's role record.
// Polling LATEST iterators keeps it simple: a missed poll only delays a
// push, and record order within the shard matches store write order.
type streamWatch struct {
	ch     chan domain.RoleRecord
	cancel context.CancelFunc
	once   sync.Once
}

func (w *streamWatch) Changes() <-chan domain.RoleRecord { return w.ch }

func (w *streamWatch) Close() {
	w.once.Do(w.cancel)
}

// Watch starts a stream tail delivering the user's record after every
// out-of-band write. The watch outlives the request context that started
// it; only Close stops it.
func (r *RoleRecordRepository) Watch(ctx context.Context, userID string) (ports.RoleWatch, error) {
	streamArn, err := r.latestStreamArn(ctx)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	w := &streamWatch{
		ch:     make(chan domain.RoleRecord, 16),
		cancel: cancel,
	}
	go r.tail(watchCtx, streamArn, userID, w.ch)
	return w, nil
}

func (r *RoleRecordRepository) latestStreamArn(ctx context.Context) (string, error) {
	out, err := r.client.db.DescribeTable(ctx, &awsv2dynamodb.DescribeTableInput{
		TableName: aws.String(r.client.tableName),
	})
	if err != nil {
		return "", err
	}
	if out.Table == nil || out.Table.LatestStreamArn == nil || *out.Table.LatestStreamArn == "" {
		return "", errors.New("table has no stream enabled")
	}
	return *out.Table.LatestStreamArn, nil
}

func (r *RoleRecordRepository) tail(ctx context.Context, streamArn, userID string, ch chan<- domain.RoleRecord) {
	defer close(ch)

	wantPK := rolePK(userID)
	iterators := map[string]string{}
	refreshEvery := 30 * time.Second
	lastRefresh := time.Time{}

	ticker := time.NewTicker(r.client.pollInterval)
	defer ticker.Stop()

	for {
		if time.Since(lastRefresh) >= refreshEvery {
			if err := r.refreshShards(ctx, streamArn, iterators); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn(ctx, "stream shard refresh failed", "error", err)
			}
			lastRefresh = time.Now()
		}

		for shardID, iterator := range iterators {
			out, err := r.client.streams.GetRecords(ctx, &awsv2streams.GetRecordsInput{
				ShardIterator: aws.String(iterator),
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn(ctx, "stream read failed", "shard", shardID, "error", err)
				delete(iterators, shardID)
				continue
			}
			for _, record := range out.Records {
				rec, ok := r.decodeStreamRecord(ctx, wantPK, record)
				if !ok {
					continue
				}
				select {
				case ch <- rec:
				case <-ctx.Done():
					return
				}
			}
			if out.NextShardIterator == nil {
				delete(iterators, shardID)
				continue
			}
			iterators[shardID] = *out.NextShardIterator
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refreshShards opens LATEST iterators for shards not yet tracked, so the
// watch survives shard rotation.
func (r *RoleRecordRepository) refreshShards(ctx context.Context, streamArn string, iterators map[string]string) error {
	out, err := r.client.streams.DescribeStream(ctx, &awsv2streams.DescribeStreamInput{
		StreamArn: aws.String(streamArn),
	})
	if err != nil {
		return err
	}
	if out.StreamDescription == nil {
		return errors.New("empty stream description")
	}
	for _, shard := range out.StreamDescription.Shards {
		if shard.ShardId == nil {
			continue
		}
		if _, ok := iterators[*shard.ShardId]; ok {
			continue
		}
		// Only still-open shards matter for a LATEST tail.
		if shard.SequenceNumberRange != nil && shard.SequenceNumberRange.EndingSequenceNumber != nil {
			continue
		}
		iterOut, err := r.client.streams.GetShardIterator(ctx, &awsv2streams.GetShardIteratorInput{
			StreamArn:         aws.String(streamArn),
			ShardId:           shard.ShardId,
			ShardIteratorType: streamtypes.ShardIteratorTypeLatest,
		})
		if err != nil {
			return err
		}
		if iterOut.ShardIterator != nil {
			iterators[*shard.ShardId] = *iterOut.ShardIterator
		}
	}
	return nil
}

func (r *RoleRecordRepository) decodeStreamRecord(ctx context.Context, wantPK string, record streamtypes.Record) (domain.RoleRecord, bool) {
	if record.Dynamodb == nil {
		return domain.RoleRecord{}, false
	}
	if record.EventName != streamtypes.OperationTypeInsert && record.EventName != streamtypes.OperationTypeModify {
		return domain.RoleRecord{}, false
	}
	pk, ok := record.Dynamodb.Keys["PK"].(*streamtypes.AttributeValueMemberS)
	if !ok || pk.Value != wantPK {
		return domain.RoleRecord{}, false
	}
	var raw rawRoleItem
	if err := streamsattr.UnmarshalMap(record.Dynamodb.NewImage, &raw); err != nil {
		r.logger.Warn(ctx, "undecodable stream image", "error", err)
		return domain.RoleRecord{}, false
	}
	return roleRecordFromRaw("", raw), true
}
