// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/menus": {
            "get": {"summary": "List menus", "parameters": [{"name": "view", "in": "query", "type": "string", "enum": ["flat", "tree"]}], "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Create a menu", "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid input"}, "404": {"description": "Parent not found"}, "409": {"description": "Type mismatch"}}}
        },
        "/menus/{id}": {
            "get": {"summary": "Get a menu", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}},
            "put": {"summary": "Update a menu", "responses": {"200": {"description": "OK"}, "409": {"description": "Circular reference or type mismatch"}}},
            "delete": {"summary": "Delete a childless menu", "responses": {"204": {"description": "Deleted"}, "409": {"description": "Has children"}}}
        },
        "/products": {
            "get": {"summary": "List products", "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Create a product with variants", "responses": {"201": {"description": "Created"}}}
        },
        "/products/{id}": {"get": {"summary": "Get a product", "responses": {"200": {"description": "OK"}}}},
        "/variants/{id}": {"put": {"summary": "Update variant price or stock", "responses": {"200": {"description": "OK"}}}},
        "/addresses": {
            "get": {"summary": "List addresses", "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Create an address", "responses": {"201": {"description": "Created"}}}
        },
        "/addresses/{id}/primary": {"put": {"summary": "Make an address primary", "responses": {"200": {"description": "OK"}}}},
        "/cart": {"get": {"summary": "Get the cart", "responses": {"200": {"description": "OK"}}}},
        "/cart/items": {"post": {"summary": "Add a variant to the cart", "responses": {"200": {"description": "OK"}, "409": {"description": "Stock exceeded"}}}},
        "/cart/items/{variant_id}": {
            "put": {"summary": "Set a line quantity", "responses": {"200": {"description": "OK"}}},
            "delete": {"summary": "Remove a line", "responses": {"204": {"description": "Removed"}}}
        },
        "/orders": {
            "get": {"summary": "List orders", "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Place an order from the cart", "responses": {"201": {"description": "Created"}, "409": {"description": "Cart stale"}, "502": {"description": "Order written, payment session not opened"}}}
        },
        "/orders/{id}": {"get": {"summary": "Get an order", "responses": {"200": {"description": "OK"}}}},
        "/payments/webhook": {"post": {"summary": "Payment processor notification", "responses": {"200": {"description": "Acknowledged"}, "400": {"description": "Invalid signature"}}}},
        "/admin/reconcile": {"post": {"summary": "Reopen payment sessions for unpaid orders", "responses": {"200": {"description": "OK"}}}},
        "/admin/audit/{entity_id}": {"get": {"summary": "Newest audit entries for a menu or order", "parameters": [{"name": "entity_id", "in": "path", "required": true, "type": "string"}, {"name": "limit", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK"}, "503": {"description": "Audit log not configured"}}}}
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "cmsshop API",
	Description:      "Navigation menus, catalog, cart and checkout.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
