// Package consumer manages OAuth2 consumers (registered clients) and the
// authorization codes issued to them.
//
// A consumer is a confidential client using the authorization_code grant. Its
// secret is generated on creation and sealed at rest by the file and
// PostgreSQL repositories. Authorization codes expire after the configured TTL
// and are removed when redeemed.
//
//	repo, _ := consumer.NewRepository("postgres", consumer.RepositoryConfig{DB: pool, Cipher: cipher})
//	service := consumer.NewConsumerService(repo, consumer.WithCodeTTL(10*time.Minute))
//
//	c, err := service.CreateConsumer(ctx, consumer.CreateConsumerParams{
//		RedirectURIs: []string{"https://app.example.com/callback"},
//		Scopes:       []string{"openid"},
//	})
package consumer
