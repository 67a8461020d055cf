package cli

import (
	"context"
	"fmt"

	"github.com/meridian-labs/transit/internal/remote"
	"github.com/meridian-labs/transit/internal/remote/azurestore"
	"github.com/meridian-labs/transit/internal/remote/httpstore"
	"github.com/meridian-labs/transit/internal/remote/s3store"
	"github.com/meridian-labs/transit/internal/transfer"
)

// openStore builds the ObjectStore selected by --backend.
func openStore() (remote.ObjectStore, error) {
	switch backend {
	case "http":
		return httpstore.New(httpstore.Options{
			Endpoint: endpoint,
			Bucket:   bucket,
			Token:    token,
			Proxy:    proxyOptions(),
		})
	case "s3":
		return s3store.New(context.Background(), s3store.Options{
			Bucket:    bucket,
			Region:    region,
			Endpoint:  endpoint,
			AccessKey: accessKey,
			SecretKey: secretKey,
			Proxy:     proxyOptions(),
		})
	case "azure":
		return azurestore.New(azurestore.Options{
			SASURL:    sasURL,
			Container: container,
			Proxy:     proxyOptions(),
		})
	default:
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			fmt.Errorf("unknown backend %q (want http, s3, or azure)", backend))
	}
}
