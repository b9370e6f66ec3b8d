// Package gql exposes the tally, the help queue and users over GraphQL.
//
//	{ votes { unvoted voted total } helpRequests { id username } user(username: "alice") { vote voted } }
//	mutation { vote(username: "alice") { status message } }
package gql

import (
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/sakif/voteboard/internal/model"
	"github.com/sakif/voteboard/internal/service"
)

var tallyType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Tally",
	Fields: graphql.Fields{
		"unvoted": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(model.Tally).Unvoted, nil
			},
		},
		"voted": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(model.Tally).Voted, nil
			},
		},
		"total": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(model.Tally).Total(), nil
			},
		},
	},
})

var helpRequestType = graphql.NewObject(graphql.ObjectConfig{
	Name: "HelpRequest",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(model.HelpEntry).ID, nil
			},
		},
		"username": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(model.HelpEntry).Username, nil
			},
		},
	},
})

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(*model.User).ID, nil
			},
		},
		"username": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(*model.User).Username, nil
			},
		},
		"vote": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(*model.User).Vote, nil
			},
		},
		"voted": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Boolean),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(*model.User).HasVoted(), nil
			},
		},
	},
})

var voteResultType = graphql.NewObject(graphql.ObjectConfig{
	Name: "VoteResult",
	Fields: graphql.Fields{
		"username": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(*model.VoteResult).Username, nil
			},
		},
		"status": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return string(p.Source.(*model.VoteResult).Status), nil
			},
		},
		"message": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(*model.VoteResult).Message, nil
			},
		},
	},
})

// NewSchema builds the schema over the given services.
func NewSchema(users *service.UserService, help *service.HelpService) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"votes": &graphql.Field{
				Type: graphql.NewNonNull(tallyType),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return users.Tally(p.Context)
				},
			},
			"helpRequests": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(helpRequestType))),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return help.List(p.Context)
				},
			},
			"user": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					username, _ := p.Args["username"].(string)
					u, err := users.GetUser(p.Context, username)
					if err != nil {
						return nil, err
					}
					return u, nil
				},
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"vote": &graphql.Field{
				Type: graphql.NewNonNull(voteResultType),
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					username, _ := p.Args["username"].(string)
					return users.SubmitVote(p.Context, username)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}

// Handler serves schema over HTTP (GET with ?query= or POST JSON).
func Handler(schema *graphql.Schema) http.Handler {
	return handler.New(&handler.Config{
		Schema: schema,
		Pretty: true,
	})
}
