package assembly

// Variable-set names shared between modules. A module that needs another
// module's variables looks them up by these names in Constrain.
const (
	VarNewCap       = "vNEWCAP"
	VarRetCap       = "vRETCAP"
	VarNewEnergyCap = "vNEWCAPENERGY"
	VarRetEnergyCap = "vRETCAPENERGY"
	VarCap          = "vCAP"
	VarEnergyCap    = "vCAPENERGY"
	VarLinkPlus     = "vLINK_PLUS"
	VarLinkMinus    = "vLINK_MINUS"

	VarDischarge  = "vP"
	VarNSE        = "vNSE"
	VarCommit     = "vCOMMIT"
	VarStart      = "vSTART"
	VarShut       = "vSHUT"
	VarCharge     = "vCHARGE"
	VarSOC        = "vS"
	VarFlexCharge = "vCHARGE_FLEX"
	VarFlexState  = "vS_FLEX"
	VarFlowFwd    = "vFLOW_FWD"
	VarFlowBwd    = "vFLOW_BWD"

	VarReg         = "vREG"
	VarRsv         = "vRSV"
	VarUnmetRsv    = "vUNMET_RSV"
	VarContAux     = "vCONTINGENCY_AUX"
	VarLargestCont = "vLARGEST_CONTINGENCY"
	VarESRSlack    = "vESR_SLACK"
	VarCRMSlack    = "vCRM_SLACK"
	VarCO2Slack    = "vCO2_SLACK"
	VarSOCModeled  = "vSOCw"
	VarDrift       = "vdSOC"
)
