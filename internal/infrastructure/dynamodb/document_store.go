package dynamodb

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-xray-sdk-go/xray"
	"ops-portal/internal/domain"
)

// DocumentStore keeps the form pages' documents in the same table as the
// role records: PK=COL#<collection>, SK=DOC#<id>. Documents are opaque
// JSON-ish maps; the permission layer above decides who may touch them.
type DocumentStore struct {
	client *Client
}

func NewDocumentStore(client *Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func documentKey(collection, id string) map[string]awsv2types.AttributeValue {
	return map[string]awsv2types.AttributeValue{
		"PK": &awsv2types.AttributeValueMemberS{Value: collectionPK(collection)},
		"SK": &awsv2types.AttributeValueMemberS{Value: documentSK(id)},
	}
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetDocument", func(ctx context.Context) error {
		var e error
		out, e = s.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: aws.String(s.client.tableName),
			Key:       documentKey(collection, id),
		})
		return e
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	return decodeDocument(out.Item)
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, doc map[string]any) error {
	item := map[string]any{
		"PK":         collectionPK(collection),
		"SK":         documentSK(id),
		"EntityType": "DOCUMENT",
		"ID":         id,
	}
	for k, v := range doc {
		item[k] = v
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	return xray.Capture(ctx, "DynamoDB.PutDocument", func(ctx context.Context) error {
		_, err := s.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName: aws.String(s.client.tableName),
			Item:      av,
		})
		return err
	})
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return domain.ErrInvalidInput
	}
	expr := "SET "
	names := make(map[string]string, len(fields))
	values := make(map[string]awsv2types.AttributeValue, len(fields))
	i := 0
	for field, value := range fields {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return err
		}
		nameKey := nameRef(i)
		valueKey := valueRef(i)
		if i > 0 {
			expr += ", "
		}
		expr += nameKey + " = " + valueKey
		names[nameKey] = field
		values[valueKey] = av
		i++
	}
	return xray.Capture(ctx, "DynamoDB.UpdateDocument", func(ctx context.Context) error {
		_, err := s.client.db.UpdateItem(ctx, &awsv2dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.client.tableName),
			Key:                       documentKey(collection, id),
			UpdateExpression:          aws.String(expr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ConditionExpression:       aws.String("attribute_exists(PK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrNotFound
		}
		return err
	})
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	return xray.Capture(ctx, "DynamoDB.DeleteDocument", func(ctx context.Context) error {
		_, err := s.client.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
			TableName: aws.String(s.client.tableName),
			Key:       documentKey(collection, id),
		})
		return err
	})
}

func (s *DocumentStore) Query(ctx context.Context, collection string) ([]map[string]any, error) {
	var docs []map[string]any
	var startKey map[string]awsv2types.AttributeValue
	for {
		var out *awsv2dynamodb.QueryOutput
		err := xray.Capture(ctx, "DynamoDB.QueryDocuments", func(ctx context.Context) error {
			var e error
			out, e = s.client.db.Query(ctx, &awsv2dynamodb.QueryInput{
				TableName:              aws.String(s.client.tableName),
				KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
				ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
					":pk": &awsv2types.AttributeValueMemberS{Value: collectionPK(collection)},
					":sk": &awsv2types.AttributeValueMemberS{Value: "DOC#"},
				},
				ExclusiveStartKey: startKey,
			})
			return e
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			doc, err := decodeDocument(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		if out.LastEvaluatedKey == nil {
			return docs, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func decodeDocument(item map[string]awsv2types.AttributeValue) (map[string]any, error) {
	doc := map[string]any{}
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, err
	}
	delete(doc, "PK")
	delete(doc, "SK")
	delete(doc, "EntityType")
	return doc, nil
}

func nameRef(i int) string  { return "#f" + strconv.Itoa(i) }
func valueRef(i int) string { return ":v" + strconv.Itoa(i) }
