package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

const productSelection = "{ id name slug description created category { id name } pricing { onSale } }"

func loadFixture(t *testing.T, opts Options) *Catalog {
	t.Helper()
	cat, err := Load("testdata/schema.graphql", opts)
	require.NoError(t, err)
	return cat
}

func operationNames(cat *Catalog) []string {
	var names []string
	for _, op := range cat.Operations() {
		names = append(names, op.Name)
	}
	return names
}

func TestLoad_DeclarationOrder(t *testing.T) {
	cat := loadFixture(t, Options{})

	want := []string{"product", "products", "categories", "search", "node", "shopName", "checkoutCreate"}
	if diff := cmp.Diff(want, operationNames(cat)); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}

	checkout, ok := cat.Lookup("checkoutCreate")
	require.True(t, ok)
	assert.Equal(t, Mutation, checkout.Kind)
	assert.Equal(t, "Create a new checkout.", checkout.Description)
}

func TestLoad_Deterministic(t *testing.T) {
	a := loadFixture(t, Options{})
	b := loadFixture(t, Options{})
	if diff := cmp.Diff(a.Operations(), b.Operations()); diff != "" {
		t.Fatalf("catalog differs between builds (-a +b):\n%s", diff)
	}
}

func TestLoad_SkipsIntrospectionFields(t *testing.T) {
	cat := loadFixture(t, Options{})
	_, ok := cat.Lookup("__schema")
	assert.False(t, ok)
	_, ok = cat.Lookup("__type")
	assert.False(t, ok)
}

func TestLoad_ProductDocument(t *testing.T) {
	cat := loadFixture(t, Options{})
	op, ok := cat.Lookup("product")
	require.True(t, ok)

	assert.False(t, op.Paginated)
	assert.Equal(t, ReturnObject, op.Return.Kind)
	assert.Equal(t, "Product", op.Return.Type)
	assert.Equal(t, productSelection, op.Return.Selection)
	assert.Equal(t,
		"query Product($id: ID, $slug: String, $channel: String) { product(id: $id, slug: $slug, channel: $channel) "+productSelection+" }",
		op.Document)
	assert.Equal(t, "Product", op.OperationName)
}

func TestLoad_DetectsConnection(t *testing.T) {
	cat := loadFixture(t, Options{})
	op, ok := cat.Lookup("products")
	require.True(t, ok)

	require.True(t, op.Paginated)
	want := &Connection{NodeType: "Product", NodeSelection: productSelection, EdgeCursor: true}
	if diff := cmp.Diff(want, op.Connection); diff != "" {
		t.Fatalf("connection mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t,
		"{ edges { cursor node "+productSelection+" } pageInfo { hasNextPage endCursor } }",
		op.Return.Selection)

	list, _ := cat.Lookup("categories")
	assert.False(t, list.Paginated)
	assert.True(t, list.Return.List)
	assert.Equal(t, "{ id name parent { id name } }", list.Return.Selection)
}

func TestLoad_AbstractReturnTypes(t *testing.T) {
	cat := loadFixture(t, Options{})

	search, _ := cat.Lookup("search")
	assert.Equal(t, ReturnUnion, search.Return.Kind)
	assert.Equal(t, "{ __typename }", search.Return.Selection)

	node, _ := cat.Lookup("node")
	assert.Equal(t, ReturnInterface, node.Return.Kind)
	assert.Equal(t, "{ __typename id }", node.Return.Selection)

	shop, _ := cat.Lookup("shopName")
	assert.Equal(t, ReturnScalar, shop.Return.Kind)
	assert.Empty(t, shop.Return.Selection)
	assert.Equal(t, "query ShopName { shopName }", shop.Document)
}

func TestLoad_ArgumentSchemas(t *testing.T) {
	cat := loadFixture(t, Options{})
	op, _ := cat.Lookup("products")

	where, ok := op.Argument("where")
	require.True(t, ok)
	assert.False(t, where.Required)
	assert.Equal(t, TypeRef{Kind: KindInputObject, Name: "ProductWhereInput"}, where.Type)

	sortBy, _ := op.Argument("sortBy")
	assert.Equal(t, []string{"NAME", "PRICE", "CREATED"}, sortBy.Constraints.Enum)

	first, _ := op.Argument("first")
	require.NotNil(t, first.Constraints.Max)
	assert.Equal(t, float64(2147483647), *first.Constraints.Max)

	require.Contains(t, op.Inputs, "ProductWhereInput")
	require.Contains(t, op.Inputs, "PriceRangeInput")
	require.Contains(t, op.Enums, "ProductOrder")

	and, ok := op.Inputs["ProductWhereInput"].Field("AND")
	require.True(t, ok)
	assert.Equal(t, "[ProductWhereInput!]", and.Type.String())

	checkout, _ := cat.Lookup("checkoutCreate")
	input, _ := checkout.Argument("input")
	assert.True(t, input.Required)
	channel, ok := checkout.Inputs["CheckoutCreateInput"].Field("channel")
	require.True(t, ok)
	assert.True(t, channel.HasDefault)
	assert.Equal(t, "default-channel", channel.Default)
}

func TestLoad_OperationFilter(t *testing.T) {
	cat := loadFixture(t, Options{Operations: []string{"products", "product"}})
	assert.Equal(t, []string{"product", "products"}, operationNames(cat))

	_, err := Load("testdata/schema.graphql", Options{Operations: []string{"orders"}})
	require.Error(t, err)
	assert.Equal(t, toolerr.KindSchema, toolerr.KindOf(err))
}

func TestParse_UnmappedCustomScalar(t *testing.T) {
	sdl := `
scalar DateTime
type Query { orders(since: DateTime): [String!]! }
`
	_, err := Parse("orders.graphql", sdl, Options{})
	require.Error(t, err)
	assert.Equal(t, toolerr.KindSchema, toolerr.KindOf(err))
	assert.Contains(t, err.Error(), "DateTime")

	cat, err := Parse("orders.graphql", sdl, Options{Scalars: map[string]ScalarKind{"DateTime": ScalarString}})
	require.NoError(t, err)
	op, _ := cat.Lookup("orders")
	since, _ := op.Argument("since")
	assert.Equal(t, ScalarString, since.Type.Scalar)
}

func TestParse_InvalidSDL(t *testing.T) {
	_, err := Parse("broken.graphql", "type Query { products: Missing }", Options{})
	require.Error(t, err)
	assert.Equal(t, toolerr.KindSchema, toolerr.KindOf(err))
}

func TestParse_NonNullArgumentWithDefault(t *testing.T) {
	sdl := `type Query { categories(level: Int! = 0): [String!]! }`
	cat, err := Parse("categories.graphql", sdl, Options{})
	require.NoError(t, err)

	op, _ := cat.Lookup("categories")
	level, _ := op.Argument("level")
	assert.False(t, level.Required)
	assert.True(t, level.HasDefault)
	assert.Equal(t, "query Categories($level: Int! = 0) { categories(level: $level) }", op.Document)
}

func TestParse_DepthLimit(t *testing.T) {
	cat, err := Load("testdata/schema.graphql", Options{MaxSelectionDepth: 1, Operations: []string{"categories"}})
	require.NoError(t, err)
	op, _ := cat.Lookup("categories")
	assert.Equal(t, "{ id name }", op.Return.Selection)
}

func TestWithSelection(t *testing.T) {
	cat := loadFixture(t, Options{})

	op, err := cat.WithSelection("products", "id name slug")
	require.NoError(t, err)
	assert.Equal(t, "{ id name slug }", op.Connection.NodeSelection)
	assert.Contains(t, op.Document, "edges { cursor node { id name slug } }")

	orig, _ := cat.Lookup("products")
	assert.Equal(t, productSelection, orig.Connection.NodeSelection, "catalog entry must not change")

	_, err = cat.WithSelection("product", "{ id price }")
	require.Error(t, err)
	assert.Equal(t, toolerr.KindSchema, toolerr.KindOf(err))

	_, err = cat.WithSelection("shopName", "{ id }")
	require.Error(t, err)
}
