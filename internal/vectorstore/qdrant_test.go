package vectorstore

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// fakeCollections records collection calls against an in-memory name set.
type fakeCollections struct {
	pb.CollectionsClient
	existing map[string]bool
	calls    []string
}

func (f *fakeCollections) Get(_ context.Context, in *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	f.calls = append(f.calls, "get")
	if !f.existing[in.CollectionName] {
		return nil, errors.New("not found")
	}
	return &pb.GetCollectionInfoResponse{}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.calls = append(f.calls, "create")
	f.existing[in.CollectionName] = true
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.calls = append(f.calls, "delete")
	delete(f.existing, in.CollectionName)
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func TestQdrantOpenRecreatesExistingCollection(t *testing.T) {
	fake := &fakeCollections{existing: map[string]bool{"nuka_memory_alice": true}}
	c := &Client{collections: fake, prefix: "nuka_memory_"}

	if _, err := c.Open(context.Background(), "alice", 8); err != nil {
		t.Fatalf("open: %v", err)
	}
	want := []string{"get", "delete", "get", "create"}
	if len(fake.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", fake.calls, want)
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", fake.calls, want)
		}
	}
}

func TestQdrantOpenCreatesMissingCollection(t *testing.T) {
	fake := &fakeCollections{existing: map[string]bool{}}
	c := &Client{collections: fake, prefix: "nuka_memory_"}

	if _, err := c.Open(context.Background(), "bob", 8); err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(fake.calls) != 3 || fake.calls[2] != "create" || !fake.existing["nuka_memory_bob"] {
		t.Errorf("calls = %v existing = %v", fake.calls, fake.existing)
	}
}
