package cmd

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/microsoft/vscode-documentdb-sub002/internal/docdb"
)

// Document tools run against a saved connection (connection_id) or the
// configured default URI.

func connectionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("connection_id",
			mcp.Description("Saved connection id (default: the configured documentdb_uri)"),
		),
		zoneOption(),
	}
}

func databaseOption() mcp.ToolOption {
	return mcp.WithString("database_name",
		mcp.Required(),
		mcp.Description("Database name"),
	)
}

func collectionOption() mcp.ToolOption {
	return mcp.WithString("collection_name",
		mcp.Required(),
		mcp.Description("Collection name"),
	)
}

func documentTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, connectionOptions()...)
	return mcp.NewTool(name, append(all, opts...)...)
}

func (t *mcpTools) registerDocumentTools(s *server.MCPServer) {
	t.add(s, documentTool("list_databases", "List all databases on the server"), t.handleListDatabases)

	t.add(s, documentTool("db_stats", "Get database statistics (dbStats)",
		databaseOption(),
	), t.handleDBStats)

	t.add(s, documentTool("get_db_info", "Get collection names and an estimated document total for a database",
		databaseOption(),
	), t.handleDBInfo)

	t.add(s, documentTool("list_collections", "List collections in a database",
		databaseOption(),
	), t.handleListCollections)

	t.add(s, documentTool("collection_stats", "Get collection statistics (collStats)",
		databaseOption(),
		collectionOption(),
	), t.handleCollectionStats)

	t.add(s, documentTool("find_documents", "Find documents matching an extended JSON query",
		databaseOption(),
		collectionOption(),
		mcp.WithString("query", mcp.Description("Extended JSON filter (default: {})")),
		mcp.WithNumber("limit", mcp.Description("Maximum documents to return (default: 100)")),
		mcp.WithNumber("skip", mcp.Description("Documents to skip (default: 0)")),
	), t.handleFind)

	t.add(s, documentTool("count_documents", "Count documents matching an extended JSON query",
		databaseOption(),
		collectionOption(),
		mcp.WithString("query", mcp.Description("Extended JSON filter (default: {})")),
	), t.handleCount)

	t.add(s, documentTool("insert_document", "Insert one document",
		databaseOption(),
		collectionOption(),
		mcp.WithString("document", mcp.Required(), mcp.Description("Extended JSON document")),
	), t.handleInsert)

	t.add(s, documentTool("update_document", "Update the first document matching a filter",
		databaseOption(),
		collectionOption(),
		mcp.WithString("filter", mcp.Required(), mcp.Description("Extended JSON filter")),
		mcp.WithString("update", mcp.Required(), mcp.Description("Extended JSON update (e.g. {\"$set\": {...}})")),
		mcp.WithBoolean("upsert", mcp.Description("Insert when nothing matches")),
	), t.handleUpdate)

	t.add(s, documentTool("delete_document", "Delete the first document matching a filter",
		databaseOption(),
		collectionOption(),
		mcp.WithString("filter", mcp.Required(), mcp.Description("Extended JSON filter")),
	), t.handleDeleteDocument)

	t.add(s, documentTool("aggregate", "Run an aggregation pipeline",
		databaseOption(),
		collectionOption(),
		mcp.WithString("pipeline", mcp.Required(), mcp.Description("Extended JSON array of stages")),
		mcp.WithBoolean("allow_disk_use", mcp.Description("Allow stages to spill to disk")),
	), t.handleAggregate)

	t.add(s, documentTool("list_indexes", "List the indexes of a collection",
		databaseOption(),
		collectionOption(),
	), t.handleListIndexes)

	t.add(s, documentTool("sample_documents", "Return a random sample of documents, useful for learning a collection's shape",
		databaseOption(),
		collectionOption(),
		mcp.WithNumber("sample_size", mcp.Description("Number of documents (default: 10)")),
	), t.handleSample)

	t.add(s, documentTool("drop_collection", "Drop a collection",
		databaseOption(),
		collectionOption(),
	), t.handleDropCollection)

	t.add(s, documentTool("rename_collection", "Rename a collection within its database",
		databaseOption(),
		collectionOption(),
		mcp.WithString("new_collection_name", mcp.Required(), mcp.Description("New collection name")),
		mcp.WithBoolean("drop_target", mcp.Description("Replace an existing collection with the new name")),
	), t.handleRenameCollection)
}

// docArgs are the arguments shared by every document tool.
type docArgs struct {
	target     docdb.Target
	database   string
	collection string
}

func parseDocArgs(req mcp.CallToolRequest, needCollection bool) (docArgs, error) {
	zone, err := toolZone(req)
	if err != nil {
		return docArgs{}, err
	}
	args := docArgs{target: docdb.Target{Zone: zone, ConnectionID: req.GetString("connection_id", "")}}
	if args.database, err = req.RequireString("database_name"); err != nil {
		return args, err
	}
	if needCollection {
		if args.collection, err = req.RequireString("collection_name"); err != nil {
			return args, err
		}
	}
	return args, nil
}

func extJSONResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("documentdb error: %v", err)), nil
	}
	out, err := docdb.ToExtJSON(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (t *mcpTools) handleListDatabases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target := docdb.Target{Zone: zone, ConnectionID: req.GetString("connection_id", "")}
	return extJSONResult(t.app.docs.ListDatabases(ctx, target))
}

func (t *mcpTools) handleDBStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.DBStats(ctx, args.target, args.database))
}

func (t *mcpTools) handleDBInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.DBInfo(ctx, args.target, args.database))
}

func (t *mcpTools) handleListCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.ListCollections(ctx, args.target, args.database))
}

func (t *mcpTools) handleCollectionStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.CollectionStats(ctx, args.target, args.database, args.collection))
}

func (t *mcpTools) handleFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := docdb.ParseDocument(req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := int64(req.GetInt("limit", 100))
	skip := int64(req.GetInt("skip", 0))
	if skip < 0 {
		return mcp.NewToolResultError("skip must not be negative"), nil
	}
	return extJSONResult(t.app.docs.Find(ctx, args.target, args.database, args.collection, filter, limit, skip))
}

func (t *mcpTools) handleCount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := docdb.ParseDocument(req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.Count(ctx, args.target, args.database, args.collection, filter))
}

func (t *mcpTools) handleInsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := docdb.ParseDocument(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.InsertOne(ctx, args.target, args.database, args.collection, doc))
}

func (t *mcpTools) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawFilter, err := req.RequireString("filter")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawUpdate, err := req.RequireString("update")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := docdb.ParseDocument(rawFilter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	update, err := docdb.ParseDocument(rawUpdate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	upsert := req.GetBool("upsert", false)
	return extJSONResult(t.app.docs.UpdateOne(ctx, args.target, args.database, args.collection, filter, update, upsert))
}

func (t *mcpTools) handleDeleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("filter")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := docdb.ParseDocument(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.DeleteOne(ctx, args.target, args.database, args.collection, filter))
}

func (t *mcpTools) handleAggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("pipeline")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pipeline, err := docdb.ParsePipeline(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	allowDisk := req.GetBool("allow_disk_use", false)
	return extJSONResult(t.app.docs.Aggregate(ctx, args.target, args.database, args.collection, pipeline, allowDisk))
}

func (t *mcpTools) handleListIndexes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.ListIndexes(ctx, args.target, args.database, args.collection))
}

func (t *mcpTools) handleSample(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	size := req.GetInt("sample_size", 10)
	if size < 1 {
		return mcp.NewToolResultError("sample_size must be at least 1"), nil
	}
	return extJSONResult(t.app.docs.SampleDocuments(ctx, args.target, args.database, args.collection, int64(size)))
}

func (t *mcpTools) handleDropCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return extJSONResult(t.app.docs.DropCollection(ctx, args.target, args.database, args.collection))
}

func (t *mcpTools) handleRenameCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseDocArgs(req, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newName, err := req.RequireString("new_collection_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if newName == args.collection {
		return mcp.NewToolResultError("new_collection_name must differ from collection_name"), nil
	}
	dropTarget := req.GetBool("drop_target", false)
	return extJSONResult(t.app.docs.RenameCollection(ctx, args.target, args.database, args.collection, newName, dropTarget))
}
