package web3

// zdaoABI is the contract surface of the ZDAO voting contract. Vote counts
// live as encrypted euint8 handles (bytes32 on the wire) until the reveal
// ceremony publishes them.
const zdaoABI = `[
	{"type":"error","name":"AlreadyVoted","inputs":[]},
	{"type":"error","name":"FHEPermissionDenied","inputs":[]},
	{"type":"error","name":"InvalidProposal","inputs":[]},
	{"type":"error","name":"NotVoted","inputs":[]},
	{"type":"error","name":"VoteCountsAlreadyPublic","inputs":[]},
	{"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":true},
		{"name":"description","type":"string","indexed":false}]},
	{"type":"event","name":"VoteCountsMadePublic","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":true}]},
	{"type":"event","name":"Voted","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":true},
		{"name":"voter","type":"address","indexed":false}]},
	{"type":"function","name":"createProposal","stateMutability":"nonpayable","inputs":[
		{"name":"description","type":"string"}],"outputs":[]},
	{"type":"function","name":"getEncryptedVoteCount","stateMutability":"view","inputs":[
		{"name":"proposalId","type":"uint256"}],"outputs":[
		{"name":"yes","type":"bytes32"},
		{"name":"no","type":"bytes32"}]},
	{"type":"function","name":"getMyVote","stateMutability":"view","inputs":[
		{"name":"proposalId","type":"uint256"}],"outputs":[
		{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getPublicVoteCounts","stateMutability":"view","inputs":[
		{"name":"proposalId","type":"uint256"}],"outputs":[
		{"name":"yesCount","type":"uint8"},
		{"name":"noCount","type":"uint8"},
		{"name":"isPublic","type":"bool"}]},
	{"type":"function","name":"hasAnyVotes","stateMutability":"view","inputs":[
		{"name":"proposalId","type":"uint256"}],"outputs":[
		{"name":"","type":"bool"}]},
	{"type":"function","name":"hasUserVoted","stateMutability":"view","inputs":[
		{"name":"proposalId","type":"uint256"},
		{"name":"voter","type":"address"}],"outputs":[
		{"name":"","type":"bool"}]},
	{"type":"function","name":"isProposalOwner","stateMutability":"view","inputs":[
		{"name":"proposalId","type":"uint256"},
		{"name":"user","type":"address"}],"outputs":[
		{"name":"","type":"bool"}]},
	{"type":"function","name":"makeVoteCountsPublic","stateMutability":"nonpayable","inputs":[
		{"name":"proposalId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"proposalCount","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}]},
	{"type":"function","name":"proposals","stateMutability":"view","inputs":[
		{"name":"","type":"uint256"}],"outputs":[
		{"name":"description","type":"string"},
		{"name":"yesCount","type":"bytes32"},
		{"name":"noCount","type":"bytes32"},
		{"name":"isPublic","type":"bool"},
		{"name":"publicYesCount","type":"uint8"},
		{"name":"publicNoCount","type":"uint8"}]},
	{"type":"function","name":"submitDecryptedVoteCounts","stateMutability":"nonpayable","inputs":[
		{"name":"proposalId","type":"uint256"},
		{"name":"abiEncodedClearVoteCounts","type":"bytes"},
		{"name":"decryptionProof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[
		{"name":"proposalId","type":"uint256"},
		{"name":"encryptedVote","type":"bytes32"},
		{"name":"proof","type":"bytes"}],"outputs":[]}
]`
