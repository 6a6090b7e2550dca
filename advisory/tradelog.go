package advisory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TradeRecord is one row of the trade log. The table is keyed by account (partition) and
// trade_key (sort), which starts with the creation time so queries come back in time order.
type TradeRecord struct {
	Account    string    `dynamodbav:"account" json:"account"`
	TradeKey   string    `dynamodbav:"trade_key" json:"-"`
	TradeID    string    `dynamodbav:"trade_id" json:"trade_id"`
	Symbol     string    `dynamodbav:"symbol" json:"symbol"`
	Side       string    `dynamodbav:"side" json:"side"`
	Quantity   float64   `dynamodbav:"quantity" json:"quantity"`
	OrderType  string    `dynamodbav:"order_type" json:"order_type"`
	LimitPrice float64   `dynamodbav:"limit_price,omitempty" json:"limit_price,omitempty"`
	Status     string    `dynamodbav:"status" json:"status"`
	SessionID  string    `dynamodbav:"session_id,omitempty" json:"session_id,omitempty"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"created_at"`
}

// DynamoAPI is the part of *dynamodb.Client the trade log uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrDuplicateTrade is returned when a trade with the same key was already recorded.
var ErrDuplicateTrade = errors.New("trade already recorded")

// TradeLog stores executed trades in DynamoDB.
type TradeLog struct {
	api   DynamoAPI
	table string
}

func NewTradeLog(api DynamoAPI, table string) *TradeLog {
	return &TradeLog{api: api, table: table}
}

func tradeKey(rec TradeRecord) string {
	return rec.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + rec.TradeID
}

// Put records rec. It fails with ErrDuplicateTrade rather than overwrite a row.
func (l *TradeLog) Put(ctx context.Context, rec TradeRecord) error {
	if rec.TradeKey == "" {
		rec.TradeKey = tradeKey(rec)
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	_, err = l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(l.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#sk": "trade_key"},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, rec.TradeID)
	}
	if err != nil {
		return fmt.Errorf("put trade %s: %w", rec.TradeID, err)
	}
	return nil
}

// Recent returns up to limit trades of account, newest first.
func (l *TradeLog) Recent(ctx context.Context, account string, limit int) ([]TradeRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:                aws.String(l.table),
		KeyConditionExpression:   aws.String("#pk = :account"),
		ExpressionAttributeNames: map[string]string{"#pk": "account"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":account": &types.AttributeValueMemberS{Value: account},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	out, err := l.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("query trades for %s: %w", account, err)
	}
	var recs []TradeRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, fmt.Errorf("unmarshal trades: %w", err)
	}
	return recs, nil
}

// FormatTrades renders trades one per line for a model or a user.
func FormatTrades(recs []TradeRecord) string {
	if len(recs) == 0 {
		return "No trades recorded."
	}
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s %s (%s", r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Side,
			strconv.FormatFloat(r.Quantity, 'f', -1, 64), r.Symbol, r.OrderType)
		if r.LimitPrice > 0 {
			fmt.Fprintf(&b, " @ %.2f", r.LimitPrice)
		}
		fmt.Fprintf(&b, ") %s", r.Status)
	}
	return b.String()
}
