package aggregates

// WriteTxOwnership defines who owns write transaction boundaries.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate means aggregate write methods start and manage their own transactions.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
)

// ReadPolicy defines how aggregate contracts expose reads.
type ReadPolicy string

const (
	ReadPolicyInvariantScoped  ReadPolicy = "invariant_scoped_reads"
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

// Contract describes aggregate-level policy expectations.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is the common marker for all aggregate contracts.
type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}

var CompoundStoreContract = Contract{
	Name:             "compound_store",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyTableRepoQueries,
	Notes:            "compound pointer and version log mutate together; snapshots are append-only",
}

var PredictionLedgerContract = Contract{
	Name:             "prediction_ledger",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyTableRepoQueries,
	Notes:            "batch header and members are inserted together; cancellation only touches unclaimed members",
}

var ExperimentLifecycleContract = Contract{
	Name:             "experiment_lifecycle",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyTableRepoQueries,
	Notes:            "status moves along the state machine under a status CAS; tracking run id is set at most once",
}
