package mgmt

// Response entities for the cluster administration API. All of these are
// built fresh per request from a runtime snapshot; nothing here is cached
// or persisted.

// ClusterMembers is the collection view returned by GET /cluster/members.
type ClusterMembers struct {
    SelfNode      string                   `json:"selfNode"`
    Members       []MemberView             `json:"members"`
    Unreachable   []UnreachableObservation `json:"unreachable"`
    Leader        string                   `json:"leader,omitempty"`
    Oldest        string                   `json:"oldest,omitempty"`
    OldestPerRole map[string]string        `json:"oldestPerRole,omitempty"`
}

// MemberView is one member entry, keyed by its fully-qualified address.
type MemberView struct {
    Node       string   `json:"node"`
    NodeUID    string   `json:"nodeUid"`
    Status     string   `json:"status"`
    Roles      []string `json:"roles"`
    DataCenter string   `json:"dataCenter"`
}

// UnreachableObservation lists the members currently reporting Node as
// unreachable. ObservedBy is sorted and deduplicated.
type UnreachableObservation struct {
    Node       string   `json:"node"`
    ObservedBy []string `json:"observedBy"`
}

// ShardEntry is the live entity count of a single shard.
type ShardEntry struct {
    ShardID     string `json:"shardId"`
    NumEntities int    `json:"numEntities"`
}

// ShardDetails is the per-shard statistics of one shard region.
type ShardDetails struct {
    Regions []ShardEntry `json:"regions"`
}

// Message carries both acknowledgements and rejections; the HTTP status code
// distinguishes the class, the message text the cause.
type Message struct {
    Message string `json:"message"`
}
