package cli

import (
    "reflect"
    "testing"

    "github.com/spf13/cobra"

    "github.com/clusterkit/go-clustermgmt/pkg/bootstrap"
)

func TestParseRegions(t *testing.T) {
    cases := []struct {
        in   string
        want []bootstrap.RegionConfig
    }{
        {"", nil},
        {"users", []bootstrap.RegionConfig{{Name: "users", NumShards: 64}}},
        {"users:16", []bootstrap.RegionConfig{{Name: "users", NumShards: 16}}},
        {"users:16, orders", []bootstrap.RegionConfig{
            {Name: "users", NumShards: 16},
            {Name: "orders", NumShards: 64},
        }},
        {"users:bogus", []bootstrap.RegionConfig{{Name: "users", NumShards: 64}}},
        {":16", nil},
    }
    for _, c := range cases {
        got := parseRegions(c.in)
        if !reflect.DeepEqual(got, c.want) {
            t.Fatalf("parseRegions(%q) = %+v, want %+v", c.in, got, c.want)
        }
    }
}

func TestSplitCSV(t *testing.T) {
    got := splitCSV(" backend , frontend ,")
    want := []string{"backend", "frontend"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("splitCSV = %v, want %v", got, want)
    }
    if splitCSV("") != nil {
        t.Fatalf("splitCSV(\"\") should be nil")
    }
}

func TestClientCommandsCarrySharedFlags(t *testing.T) {
    cmds := map[string]*cobra.Command{
        "members":          NewMembersCmd(),
        "member":           NewMemberCmd(),
        "join":             NewJoinCmd(),
        "leave":            NewLeaveCmd(),
        "down":             NewDownCmd(),
        "shards":           NewShardsCmd(),
        "prepare-shutdown": NewPrepareShutdownCmd(),
    }
    for name, cmd := range cmds {
        for _, flag := range []string{"addr", "timeout", "tls-enable", "tls-ca", "tls-server-name"} {
            if cmd.Flags().Lookup(flag) == nil {
                t.Fatalf("%s command missing flag %q", name, flag)
            }
        }
    }
}
