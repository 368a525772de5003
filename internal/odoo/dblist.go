package odoo

import (
	"fmt"

	"github.com/kolo/xmlrpc"
)

// DatabaseList enumerates the databases hosted by an Odoo server. This is
// the one pre-authentication call, and the one place XML-RPC is used:
// JSON-RPC is unavailable before a session exists.
func DatabaseList(serverURL string) ([]string, error) {
	client, err := xmlrpc.NewClient(serverURL+"/xmlrpc/db", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	var databases []string
	if err := client.Call("list", nil, &databases); err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return databases, nil
}
