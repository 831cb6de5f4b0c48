package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	documentsvc "github.com/alanyang/portfolio-api/internal/service/document"
)

// RegisterTools registers the document tools on the server.
// [SRP] Tool registration only.
// [OCP] Add a new tool by adding a new AddTool call; server.go never changes.
func RegisterTools(s *mcpserver.MCPServer, services []*documentsvc.Service) {
	byCollection := make(map[domaindocument.Collection]*documentsvc.Service, len(services))
	names := make([]string, 0, len(services))
	for _, svc := range services {
		coll := svc.Resource().Collection
		byCollection[coll] = svc
		names = append(names, string(coll))
	}
	collectionArg := mcpmcp.WithString("collection",
		mcpmcp.Required(),
		mcpmcp.Enum(names...),
		mcpmcp.Description("Collection name: "+strings.Join(names, ", ")),
	)

	s.AddTool(mcpmcp.NewTool("list_documents",
		mcpmcp.WithDescription("List every document of a collection in storage order."),
		collectionArg,
	), listDocumentsHandler(byCollection))

	s.AddTool(mcpmcp.NewTool("get_document",
		mcpmcp.WithDescription("Fetch one document by its 24-character hex id. Returns null if it does not exist. Messages cannot be fetched individually."),
		collectionArg,
		mcpmcp.WithString("id", mcpmcp.Required(), mcpmcp.Description("Document id (24 hex characters)")),
	), getDocumentHandler(byCollection))

	s.AddTool(mcpmcp.NewTool("create_document",
		mcpmcp.WithDescription("Insert a document exactly as given and return the insert acknowledgement."),
		collectionArg,
		mcpmcp.WithString("document", mcpmcp.Required(), mcpmcp.Description("Document as a JSON object")),
	), createDocumentHandler(byCollection))
}

func lookup(byCollection map[domaindocument.Collection]*documentsvc.Service, req mcpmcp.CallToolRequest) (*documentsvc.Service, error) {
	name := mcpmcp.ParseString(req, "collection", "")
	svc, ok := byCollection[domaindocument.Collection(name)]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return svc, nil
}

func listDocumentsHandler(byCollection map[domaindocument.Collection]*documentsvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		svc, err := lookup(byCollection, req)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		docs, err := svc.List(ctx)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		if docs == nil {
			docs = []domaindocument.Document{}
		}
		data, err := json.Marshal(docs)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		return mcpmcp.NewToolResultText(string(data)), nil
	}
}

func getDocumentHandler(byCollection map[domaindocument.Collection]*documentsvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		svc, err := lookup(byCollection, req)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		if !svc.Resource().SingleFetch {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s cannot be fetched individually", svc.Resource().Collection)), nil
		}

		doc, err := svc.Get(ctx, mcpmcp.ParseString(req, "id", ""))
		if errors.Is(err, domaindocument.ErrNotFound) {
			return mcpmcp.NewToolResultText("null"), nil
		}
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		return mcpmcp.NewToolResultText(string(data)), nil
	}
}

func createDocumentHandler(byCollection map[domaindocument.Collection]*documentsvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		svc, err := lookup(byCollection, req)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}

		var doc domaindocument.Document
		if err := json.Unmarshal([]byte(mcpmcp.ParseString(req, "document", "")), &doc); err != nil || doc == nil {
			return mcpmcp.NewToolResultText("error: document must be a JSON object"), nil
		}

		res, err := svc.Create(ctx, doc)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		data, err := json.Marshal(res)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		return mcpmcp.NewToolResultText(string(data)), nil
	}
}
