package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DynamoDB single-table layout:
//
//	product node   PK=PRODUCT#<id>  SK=META                    GSI3 CATEGORY#<cat> / PRODUCT#<id>
//	user node      PK=USER#<id>     SK=META
//	interaction    PK=USER#<uid>    SK=INT#<ts>#<type>#<pid>#<n> GSI1 PRODUCT#<pid> / INT#<ts>...
//	                                                             GSI2 ACTIVITY#<yyyy-mm-dd> / <ts>
//	similarity     PK=PRODUCT#<a>   SK=SIM#<b>   (stored in both directions)
const (
	gsiProductInteractions = "GSI1"
	gsiDailyActivity       = "GSI2"
	gsiCategory            = "GSI3"

	metaSK          = "META"
	interactionPref = "INT#"
	similarPref     = "SIM#"

	// Fixed width so lexical order is time order.
	tsLayout  = "2006-01-02T15:04:05.000000000Z"
	dayLayout = "2006-01-02"

	batchWriteSize  = 25
	batchGetSize    = 100
	maxBatchRetries = 5
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoGraph.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoGraph stores the graph in one DynamoDB table.
type DynamoGraph struct {
	client    DynamoAPI
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var _ Store = (*DynamoGraph)(nil)

func NewDynamoGraph(client DynamoAPI, tableName string, logger *zap.Logger) *DynamoGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoGraph{client: client, tableName: tableName, logger: logger, now: time.Now}
}

type productRecord struct {
	PK       string  `dynamodbav:"PK"`
	SK       string  `dynamodbav:"SK"`
	GSI3PK   string  `dynamodbav:"GSI3PK"`
	GSI3SK   string  `dynamodbav:"GSI3SK"`
	ID       string  `dynamodbav:"id"`
	Name     string  `dynamodbav:"name"`
	Category string  `dynamodbav:"category"`
	Brand    string  `dynamodbav:"brand,omitempty"`
	Price    string  `dynamodbav:"price"`
	Rating   float64 `dynamodbav:"rating"`
}

type userRecord struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	ID    string `dynamodbav:"id"`
	Name  string `dynamodbav:"name"`
	Email string `dynamodbav:"email"`
}

type interactionRecord struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	GSI1PK    string    `dynamodbav:"GSI1PK"`
	GSI1SK    string    `dynamodbav:"GSI1SK"`
	GSI2PK    string    `dynamodbav:"GSI2PK"`
	GSI2SK    string    `dynamodbav:"GSI2SK"`
	UserID    string    `dynamodbav:"userId"`
	ProductID string    `dynamodbav:"productId"`
	Type      string    `dynamodbav:"type"`
	Timestamp time.Time `dynamodbav:"timestamp"`
	Weight    int       `dynamodbav:"weight"`
}

type similarityRecord struct {
	PK     string  `dynamodbav:"PK"`
	SK     string  `dynamodbav:"SK"`
	Other  string  `dynamodbav:"other"`
	Weight float64 `dynamodbav:"weight"`
}

type keyRecord struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

func productPK(id string) string { return "PRODUCT#" + id }
func userPK(id string) string    { return "USER#" + id }

func newInteractionRecord(in Interaction) interactionRecord {
	ts := in.Timestamp.UTC().Format(tsLayout)
	// The suffix keeps two identical interactions in the same instant apart.
	suffix := uuid.NewString()[:8]
	sk := fmt.Sprintf("%s%s#%s#%s#%s", interactionPref, ts, in.Type, in.ProductID, suffix)
	return interactionRecord{
		PK:        userPK(in.UserID),
		SK:        sk,
		GSI1PK:    productPK(in.ProductID),
		GSI1SK:    fmt.Sprintf("%s%s#%s#%s", interactionPref, ts, in.UserID, suffix),
		GSI2PK:    "ACTIVITY#" + in.Timestamp.UTC().Format(dayLayout),
		GSI2SK:    ts,
		UserID:    in.UserID,
		ProductID: in.ProductID,
		Type:      string(in.Type),
		Timestamp: in.Timestamp.UTC(),
		Weight:    in.Weight,
	}
}

func (r interactionRecord) toInteraction() Interaction {
	return Interaction{
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Type:      EdgeType(r.Type),
		Timestamp: r.Timestamp,
		Weight:    r.Weight,
	}
}

func (g *DynamoGraph) put(ctx context.Context, record interface{}) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal graph record: %w", err)
	}
	_, err = g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(g.tableName),
		Item:      item,
	})
	return err
}

func (g *DynamoGraph) UpsertProduct(ctx context.Context, node ProductNode) error {
	return g.put(ctx, productRecord{
		PK:       productPK(node.ID),
		SK:       metaSK,
		GSI3PK:   "CATEGORY#" + node.Category,
		GSI3SK:   productPK(node.ID),
		ID:       node.ID,
		Name:     node.Name,
		Category: node.Category,
		Brand:    node.Brand,
		Price:    node.Price.String(),
		Rating:   node.Rating,
	})
}

func (g *DynamoGraph) UpsertUser(ctx context.Context, node UserNode) error {
	return g.put(ctx, userRecord{
		PK:    userPK(node.ID),
		SK:    metaSK,
		ID:    node.ID,
		Name:  node.Name,
		Email: node.Email,
	})
}

func (g *DynamoGraph) AddInteraction(ctx context.Context, in Interaction) error {
	return g.put(ctx, newInteractionRecord(in))
}

func (g *DynamoGraph) AddSimilarity(ctx context.Context, s Similarity) error {
	requests := make([]types.WriteRequest, 0, 2)
	for _, rec := range []similarityRecord{
		{PK: productPK(s.ProductID1), SK: similarPref + s.ProductID2, Other: s.ProductID2, Weight: s.Weight},
		{PK: productPK(s.ProductID2), SK: similarPref + s.ProductID1, Other: s.ProductID1, Weight: s.Weight},
	} {
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return fmt.Errorf("marshal similarity: %w", err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return g.batchWrite(ctx, requests)
}

func (g *DynamoGraph) DeleteProduct(ctx context.Context, id string) error {
	keys := []keyRecord{{PK: productPK(id), SK: metaSK}}

	var sims []similarityRecord
	if err := g.queryAll(ctx, g.prefixQuery("", "PK", productPK(id), "SK", similarPref), &sims); err != nil {
		return err
	}
	for _, s := range sims {
		keys = append(keys,
			keyRecord{PK: productPK(id), SK: similarPref + s.Other},
			keyRecord{PK: productPK(s.Other), SK: similarPref + id},
		)
	}

	var inbound []interactionRecord
	if err := g.queryAll(ctx, g.prefixQuery(gsiProductInteractions, "GSI1PK", productPK(id), "GSI1SK", interactionPref), &inbound); err != nil {
		return err
	}
	for _, in := range inbound {
		keys = append(keys, keyRecord{PK: in.PK, SK: in.SK})
	}

	return g.deleteKeys(ctx, keys)
}

func (g *DynamoGraph) DeleteUser(ctx context.Context, id string) error {
	var recs []keyRecord
	if err := g.queryAll(ctx, g.partitionQuery("", "PK", userPK(id)), &recs); err != nil {
		return err
	}
	return g.deleteKeys(ctx, recs)
}

func (g *DynamoGraph) Products(ctx context.Context, ids []string) (map[string]ProductNode, error) {
	out := make(map[string]ProductNode, len(ids))
	var records []productRecord
	if err := g.batchGet(ctx, ids, productPK, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		node, err := r.toNode()
		if err != nil {
			return nil, err
		}
		out[node.ID] = node
	}
	return out, nil
}

func (g *DynamoGraph) Users(ctx context.Context, ids []string) (map[string]UserNode, error) {
	out := make(map[string]UserNode, len(ids))
	var records []userRecord
	if err := g.batchGet(ctx, ids, userPK, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		out[r.ID] = UserNode{ID: r.ID, Name: r.Name, Email: r.Email}
	}
	return out, nil
}

func (g *DynamoGraph) ProductsInCategory(ctx context.Context, category string) ([]ProductNode, error) {
	var records []productRecord
	if err := g.queryAll(ctx, g.partitionQuery(gsiCategory, "GSI3PK", "CATEGORY#"+category), &records); err != nil {
		return nil, err
	}
	out := make([]ProductNode, 0, len(records))
	for _, r := range records {
		node, err := r.toNode()
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (g *DynamoGraph) SimilarTo(ctx context.Context, productID string) ([]string, error) {
	var sims []similarityRecord
	if err := g.queryAll(ctx, g.prefixQuery("", "PK", productPK(productID), "SK", similarPref), &sims); err != nil {
		return nil, err
	}
	out := make([]string, len(sims))
	for i, s := range sims {
		out[i] = s.Other
	}
	return out, nil
}

func (g *DynamoGraph) UserInteractions(ctx context.Context, userID string) ([]Interaction, error) {
	return g.interactions(ctx, g.prefixQuery("", "PK", userPK(userID), "SK", interactionPref))
}

func (g *DynamoGraph) ProductInteractions(ctx context.Context, productID string) ([]Interaction, error) {
	return g.interactions(ctx, g.prefixQuery(gsiProductInteractions, "GSI1PK", productPK(productID), "GSI1SK", interactionPref))
}

// InteractionsSince reads one daily activity bucket per day in the range.
func (g *DynamoGraph) InteractionsSince(ctx context.Context, since time.Time) ([]Interaction, error) {
	since = since.UTC()
	end := g.now().UTC()
	var out []Interaction
	for day := since.Truncate(24 * time.Hour); !day.After(end); day = day.Add(24 * time.Hour) {
		keyCond := expression.Key("GSI2PK").Equal(expression.Value("ACTIVITY#" + day.Format(dayLayout))).
			And(expression.Key("GSI2SK").GreaterThan(expression.Value(since.Format(tsLayout))))
		found, err := g.interactions(ctx, g.keyQuery(gsiDailyActivity, keyCond))
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (g *DynamoGraph) Ping(ctx context.Context) error {
	_, err := g.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(g.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "HEALTH"},
			"SK": &types.AttributeValueMemberS{Value: "PING"},
		},
	})
	return err
}

// ============================================================================
// QUERY HELPERS
// ============================================================================

func (g *DynamoGraph) partitionQuery(index, pkName, pk string) *dynamodb.QueryInput {
	return g.keyQuery(index, expression.Key(pkName).Equal(expression.Value(pk)))
}

func (g *DynamoGraph) prefixQuery(index, pkName, pk, skName, prefix string) *dynamodb.QueryInput {
	return g.keyQuery(index, expression.Key(pkName).Equal(expression.Value(pk)).
		And(expression.Key(skName).BeginsWith(prefix)))
}

func (g *DynamoGraph) keyQuery(index string, keyCond expression.KeyConditionBuilder) *dynamodb.QueryInput {
	// Key conditions built from literals always build.
	expr, _ := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(g.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}
	return input
}

func (g *DynamoGraph) queryAll(ctx context.Context, input *dynamodb.QueryInput, out interface{}) error {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(g.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}

func (g *DynamoGraph) interactions(ctx context.Context, input *dynamodb.QueryInput) ([]Interaction, error) {
	var records []interactionRecord
	if err := g.queryAll(ctx, input, &records); err != nil {
		return nil, err
	}
	out := make([]Interaction, 0, len(records))
	for _, r := range records {
		if !strings.HasPrefix(r.SK, interactionPref) {
			continue
		}
		out = append(out, r.toInteraction())
	}
	return out, nil
}

func (g *DynamoGraph) batchGet(ctx context.Context, ids []string, pk func(string) string, out interface{}) error {
	seen := make(map[string]bool, len(ids))
	var keys []map[string]types.AttributeValue
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk(id)},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		})
	}

	var items []map[string]types.AttributeValue
	for start := 0; start < len(keys); start += batchGetSize {
		end := start + batchGetSize
		if end > len(keys) {
			end = len(keys)
		}
		request := map[string]types.KeysAndAttributes{g.tableName: {Keys: keys[start:end]}}
		for attempt := 0; len(request) > 0; attempt++ {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
			result, err := g.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return err
			}
			items = append(items, result.Responses[g.tableName]...)
			request = result.UnprocessedKeys
		}
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}

func (g *DynamoGraph) deleteKeys(ctx context.Context, keys []keyRecord) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		key, err := attributevalue.MarshalMap(k)
		if err != nil {
			return fmt.Errorf("marshal key: %w", err)
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}
	return g.batchWrite(ctx, requests)
}

func (g *DynamoGraph) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += batchWriteSize {
		end := start + batchWriteSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{g.tableName: requests[start:end]}
		for attempt := 0; len(pending) > 0; attempt++ {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
			result, err := g.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = result.UnprocessedItems
			if len(pending) > 0 {
				g.logger.Debug("Retrying unprocessed graph writes", zap.Int("count", len(pending[g.tableName])))
			}
		}
	}
	return nil
}

// backoff waits before retrying unprocessed batch entries.
func backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	if attempt > maxBatchRetries {
		return fmt.Errorf("batch still unprocessed after %d attempts", maxBatchRetries)
	}
	select {
	case <-time.After(time.Duration(attempt*attempt) * 50 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r productRecord) toNode() (ProductNode, error) {
	node := ProductNode{
		ID:       r.ID,
		Name:     r.Name,
		Category: r.Category,
		Brand:    r.Brand,
		Rating:   r.Rating,
	}
	if r.Price != "" {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return ProductNode{}, fmt.Errorf("product %s price: %w", r.ID, err)
		}
		node.Price = price
	}
	return node, nil
}
