package orchestration

import "github.com/JaimeStill/attest/pkg/openapi"

var stageParam = openapi.EnumPathParam(
	"stage", "Workflow stage",
	"ingestion", "processing", "analysis",
)

var documentSchemas = map[string]*openapi.Schema{
	"Document": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"id":           {Type: "string", Format: "uuid"},
			"name":         {Type: "string"},
			"size_bytes":   {Type: "integer", Format: "int64"},
			"content_type": {Type: "string"},
			"page_count":   {Type: "integer"},
			"status": {
				Type: "string",
				Enum: []any{"uploading", "uploaded", "processing", "processed", "failed"},
			},
			"error":      {Type: "string", Description: "Reason the document failed"},
			"created_at": {Type: "string", Format: "date-time"},
			"updated_at": {Type: "string", Format: "date-time"},
		},
	},
	"DocumentPage": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"data":        openapi.ArrayOf("Document"),
			"total":       {Type: "integer"},
			"page":        {Type: "integer"},
			"page_size":   {Type: "integer"},
			"total_pages": {Type: "integer"},
		},
	},
	"UploadReport": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"items": {
				Type: "array",
				Items: &openapi.Schema{
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"id":   {Type: "string", Format: "uuid"},
						"name": {Type: "string"},
						"status": {
							Type: "string",
							Enum: []any{"uploading", "uploaded", "failed", "removed"},
						},
						"error": {Type: "string"},
					},
				},
			},
			"uploaded": {Type: "integer"},
			"failed":   {Type: "integer"},
		},
	},
}

var workflowSchemas = map[string]*openapi.Schema{
	"StageState": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"stage":       {Type: "string", Enum: []any{"ingestion", "processing", "analysis"}},
			"name":        {Type: "string"},
			"status":      {Type: "string", Enum: []any{"pending", "running", "completed", "error"}},
			"last_error":  {Type: "string"},
			"attempts":    {Type: "integer"},
			"started_at":  {Type: "string", Format: "date-time"},
			"finished_at": {Type: "string", Format: "date-time"},
		},
	},
	"Configuration": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"company_description": {Type: "string"},
			"draft":               {Type: "string"},
			"locked":              {Type: "boolean"},
			"locked_at":           {Type: "string", Format: "date-time"},
			"regulation":          {Type: "string"},
		},
	},
	"WorkflowState": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"version":       {Type: "integer", Format: "int64"},
			"documents":     openapi.ArrayOf("Document"),
			"stages":        openapi.ArrayOf("StageState"),
			"configuration": openapi.SchemaRef("Configuration"),
			"updated_at":    {Type: "string", Format: "date-time"},
		},
	},
	"ConfigureRequest": {
		Type:     "object",
		Required: []string{"company_description"},
		Properties: map[string]*openapi.Schema{
			"company_description": {Type: "string", Description: "Company description used for ingestion"},
		},
	},
	"IngestionRequest": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"company_description": {Type: "string", Description: "Overrides the stored draft when set"},
		},
	},
	"AnalysisRequest": {
		Type:     "object",
		Required: []string{"regulation"},
		Properties: map[string]*openapi.Schema{
			"regulation": {Type: "string", Example: "GDPR"},
		},
	},
	"CancelRequest": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"reason": {Type: "string"},
		},
	},
}

var stateResponse = openapi.ResponseJSON("Workflow state", "WorkflowState")

var listOp = &openapi.Operation{
	Summary: "List documents",
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("status", "string", "Filter by document status", false),
		openapi.QueryParam("page", "integer", "Page number", false),
		openapi.QueryParam("page_size", "integer", "Results per page", false),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Page of documents", "DocumentPage"),
		400: openapi.ResponseRef("BadRequest"),
	},
}

var findOp = &openapi.Operation{
	Summary:    "Find a document",
	Parameters: []*openapi.Parameter{openapi.PathParam("id", "Document id")},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document", "Document"),
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var uploadOp = &openapi.Operation{
	Summary:     "Upload documents",
	Description: "Registers every file in the batch. Invalid files are recorded as failed; per-file outcomes are returned.",
	RequestBody: openapi.RequestBodyFiles("files"),
	Responses: map[int]*openapi.Response{
		201: openapi.ResponseJSON("Upload report", "UploadReport"),
		400: openapi.ResponseRef("BadRequest"),
		413: {Description: "Request exceeds the upload size limit"},
	},
}

var removeOp = &openapi.Operation{
	Summary:    "Remove a document",
	Parameters: []*openapi.Parameter{openapi.PathParam("id", "Document id")},
	Responses: map[int]*openapi.Response{
		204: {Description: "Document removed"},
		404: openapi.ResponseRef("NotFound"),
	},
}

var stateOp = &openapi.Operation{
	Summary:   "Get workflow state",
	Responses: map[int]*openapi.Response{200: stateResponse},
}

var regulationsOp = &openapi.Operation{
	Summary: "List supported regulations",
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseMedia(
			"Regulation identifiers",
			openapi.MediaJSON,
			&openapi.Schema{Type: "array", Items: &openapi.Schema{Type: "string"}},
		),
	},
}

var configureOp = &openapi.Operation{
	Summary:     "Set the company description draft",
	RequestBody: openapi.RequestBodyJSON("ConfigureRequest", true),
	Responses: map[int]*openapi.Response{
		200: stateResponse,
		400: openapi.ResponseRef("BadRequest"),
		409: openapi.ResponseRef("Conflict"),
	},
}

func runResponses() map[int]*openapi.Response {
	return map[int]*openapi.Response{
		200: stateResponse,
		400: openapi.ResponseRef("BadRequest"),
		409: openapi.ResponseRef("Conflict"),
		502: openapi.ResponseRef("BadGateway"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	}
}

var ingestionOp = &openapi.Operation{
	Summary:     "Run ingestion",
	Description: "Sets up the analysis backend for the company. Blocks until the stage resolves.",
	RequestBody: openapi.RequestBodyJSON("IngestionRequest", false),
	Responses:   runResponses(),
}

var processingOp = &openapi.Operation{
	Summary:     "Run processing",
	Description: "Processes every uploaded document. Requires completed ingestion.",
	Responses:   runResponses(),
}

var analysisOp = &openapi.Operation{
	Summary:     "Run analysis",
	Description: "Analyzes processed documents against a regulation. Requires completed processing.",
	RequestBody: openapi.RequestBodyJSON("AnalysisRequest", true),
	Responses:   runResponses(),
}

var cancelOp = &openapi.Operation{
	Summary:     "Cancel a running stage",
	Parameters:  []*openapi.Parameter{stageParam},
	RequestBody: openapi.RequestBodyJSON("CancelRequest", false),
	Responses: map[int]*openapi.Response{
		200: stateResponse,
		400: openapi.ResponseRef("BadRequest"),
		409: openapi.ResponseRef("Conflict"),
	},
}

var resetOp = &openapi.Operation{
	Summary:    "Reset a stage and its downstream stages",
	Parameters: []*openapi.Parameter{stageParam},
	Responses: map[int]*openapi.Response{
		200: stateResponse,
		400: openapi.ResponseRef("BadRequest"),
		409: openapi.ResponseRef("Conflict"),
	},
}
