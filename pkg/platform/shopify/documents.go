package shopify

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// document is a GraphQL operation validated at package init.
type document struct {
	Query     string
	Operation string
}

func mustParse(name, query string) document {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: query})
	if err != nil {
		panic(fmt.Sprintf("shopify: invalid GraphQL document %s: %v", name, err))
	}
	if len(doc.Operations) != 1 {
		panic(fmt.Sprintf("shopify: document %s must contain exactly one operation", name))
	}
	return document{Query: query, Operation: doc.Operations[0].Name}
}

var fulfillmentOrdersQuery = mustParse("fulfillmentOrders", `
query FulfillmentOrders($orderId: ID!) {
  order(id: $orderId) {
    fulfillmentOrders(first: 10) {
      nodes {
        id
        status
        lineItems(first: 100) {
          nodes {
            id
            remainingQuantity
          }
        }
      }
    }
  }
}`)

var fulfillmentCreateMutation = mustParse("fulfillmentCreate", `
mutation FulfillmentCreate($fulfillment: FulfillmentInput!) {
  fulfillmentCreate(fulfillment: $fulfillment) {
    fulfillment {
      id
      status
    }
    userErrors {
      field
      message
    }
  }
}`)

var carrierServiceCreateMutation = mustParse("carrierServiceCreate", `
mutation CarrierServiceCreate($input: DeliveryCarrierServiceCreateInput!) {
  carrierServiceCreate(input: $input) {
    carrierService {
      id
      name
    }
    userErrors {
      field
      message
    }
  }
}`)
