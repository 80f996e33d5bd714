package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Prefix string `json:"prefix"` // collection name prefix, default "nuka_memory_"
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	prefix      string
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "nuka_memory_"
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		prefix:      prefix,
	}, nil
}

// Open returns an empty Index over the agent's collection. Points left by an
// earlier run would alias the new stream's ordinals, so an existing collection
// is dropped and recreated.
func (c *Client) Open(ctx context.Context, namespace string, dimension int) (Index, error) {
	idx := &QdrantIndex{client: c, collection: c.prefix + namespace, dimension: uint64(dimension)}
	if _, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: idx.collection}); err == nil {
		if err := idx.Reset(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	}
	if err := c.EnsureCollection(ctx, idx.collection, idx.dimension); err != nil {
		return nil, err
	}
	return idx, nil
}

// EnsureCollection creates the named collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// QdrantIndex is one Qdrant collection keyed by record ordinal.
type QdrantIndex struct {
	client     *Client
	collection string
	dimension  uint64
}

// Insert upserts a point whose numeric ID is the record ordinal.
func (i *QdrantIndex) Insert(ctx context.Context, id uint64, vector []float32) error {
	if isZero(vector) {
		return nil
	}
	wait := true
	_, err := i.client.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%d: %w", i.collection, id, err)
	}
	return nil
}

// Search performs a nearest-neighbor search and returns the top-k ordinals.
func (i *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]uint64, error) {
	if k <= 0 || isZero(vector) {
		return nil, nil
	}
	resp, err := i.client.points.Search(ctx, &pb.SearchPoints{
		CollectionName: i.collection,
		Vector:         vector,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", i.collection, err)
	}
	ids := make([]uint64, 0, len(resp.Result))
	for _, r := range resp.Result {
		ids = append(ids, r.Id.GetNum())
	}
	return ids, nil
}

// Reset deletes and recreates the collection.
func (i *QdrantIndex) Reset(ctx context.Context) error {
	_, err := i.client.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: i.collection})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", i.collection, err)
	}
	return i.client.EnsureCollection(ctx, i.collection, i.dimension)
}
