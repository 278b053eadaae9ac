package engine

import (
	"errors"
	"testing"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"
)

var (
	approverOne = Actor{UserID: 101, CompanyID: 1}
	approverTwo = Actor{UserID: 102, CompanyID: 1}
)

func defineTestSteps(t *testing.T, eng *Engine, contractID uint, steps []ApprovalStepInput) []model.ContractApproval {
	t.Helper()
	created, err := eng.DefineApprovalSteps(testActor, contractID, steps)
	if err != nil {
		t.Fatalf("define approval steps: %v", err)
	}
	return created
}

func TestApprovalGatesCompletion(t *testing.T) {
	eng, db, notes, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	steps := defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID, ApproverEmail: "legal@example.com"},
		{ApproverID: approverTwo.UserID, ApproverEmail: "finance@example.com"},
	})
	sendContract(t, eng, contract.ID)

	// Sending points the workflow at step 1 and notifies its approver.
	if got := reloadContract(t, db, contract.ID); got.CurrentStep != 1 {
		t.Fatalf("current_step = %d, want 1", got.CurrentStep)
	}
	if n := notes.countKind(notifier.KindApprovalRequested); n != 1 {
		t.Fatalf("approval-requested notifications = %d, want 1", n)
	}

	// All parties sign, but the pending workflow holds the contract back.
	signViaCode(t, eng, sms, contract.ID, alice)
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusPartiallySigned {
		t.Fatalf("status = %s, want partially_signed while approval pending", got.Status)
	}

	if err := eng.Approve(approverOne, steps[0].ID, "terms ok"); err != nil {
		t.Fatalf("approve step 1: %v", err)
	}
	if n := notes.countKind(notifier.KindApprovalRequested); n != 2 {
		t.Fatalf("approval-requested notifications = %d, want 2 after step 1", n)
	}
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusPartiallySigned {
		t.Fatalf("status = %s, want partially_signed before final approval", got.Status)
	}

	if err := eng.Approve(approverTwo, steps[1].ID, ""); err != nil {
		t.Fatalf("approve step 2: %v", err)
	}
	got := reloadContract(t, db, contract.ID)
	if got.ApprovalStatus != model.ApprovalApproved {
		t.Fatalf("approval_status = %s, want approved", got.ApprovalStatus)
	}
	if got.Status != model.StatusActive {
		t.Fatalf("status = %s, want active after final approval", got.Status)
	}
}

func TestApprovalOrderEnforced(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	steps := defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID},
		{ApproverID: approverTwo.UserID},
	})
	sendContract(t, eng, contract.ID)

	err := eng.Approve(approverTwo, steps[1].ID, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("out-of-order approve: err = %v, want ErrInvalidTransition", err)
	}
}

func TestApprovalWrongApprover(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	steps := defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID},
	})
	sendContract(t, eng, contract.ID)

	err := eng.Approve(approverTwo, steps[0].ID, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for wrong approver", err)
	}
}

func TestOptionalStepAutoSkipped(t *testing.T) {
	eng, db, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	optional := false
	steps := defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID},
		{ApproverID: 103, IsRequired: &optional},
		{ApproverID: approverTwo.UserID},
	})
	sendContract(t, eng, contract.ID)

	if err := eng.Approve(approverOne, steps[0].ID, ""); err != nil {
		t.Fatalf("approve step 1: %v", err)
	}

	var skipped model.ContractApproval
	if err := db.First(&skipped, steps[1].ID).Error; err != nil {
		t.Fatal(err)
	}
	if skipped.Status != model.StepSkipped {
		t.Fatalf("optional step status = %s, want skipped", skipped.Status)
	}
	if got := reloadContract(t, db, contract.ID); got.CurrentStep != 3 {
		t.Fatalf("current_step = %d, want 3", got.CurrentStep)
	}
}

func TestRequiredRejectionHaltsWorkflow(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	steps := defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID},
		{ApproverID: approverTwo.UserID},
	})
	sendContract(t, eng, contract.ID)

	if err := eng.Reject(approverOne, steps[0].ID, "pricing wrong"); err != nil {
		t.Fatalf("reject step 1: %v", err)
	}
	if got := reloadContract(t, db, contract.ID); got.ApprovalStatus != model.ApprovalRejected {
		t.Fatalf("approval_status = %s, want rejected", got.ApprovalStatus)
	}

	// Later steps cannot be resolved on a rejected workflow.
	if err := eng.Approve(approverTwo, steps[1].ID, ""); !errors.Is(err, ErrApprovalRejected) {
		t.Fatalf("err = %v, want ErrApprovalRejected", err)
	}

	// Signatures still record but the contract never completes.
	signViaCode(t, eng, sms, contract.ID, alice)
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusPartiallySigned {
		t.Fatalf("status = %s, want partially_signed with rejected workflow", got.Status)
	}
}

func TestOptionalRejectionAdvances(t *testing.T) {
	eng, db, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	optional := false
	steps := defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID, IsRequired: &optional},
		{ApproverID: approverTwo.UserID},
	})
	sendContract(t, eng, contract.ID)

	// Sending auto-skips the leading optional step. Recreate it pending to
	// exercise an explicit optional rejection.
	if err := db.Model(&model.ContractApproval{}).
		Where("id = ?", steps[0].ID).
		Updates(map[string]interface{}{"status": model.StepPending, "resolved_at": nil}).Error; err != nil {
		t.Fatal(err)
	}

	if err := eng.Reject(approverOne, steps[0].ID, "not my area"); err != nil {
		t.Fatalf("optional reject: %v", err)
	}
	got := reloadContract(t, db, contract.ID)
	if got.ApprovalStatus != model.ApprovalPending {
		t.Fatalf("approval_status = %s, want still pending", got.ApprovalStatus)
	}
	if got.CurrentStep != 2 {
		t.Fatalf("current_step = %d, want 2", got.CurrentStep)
	}
}

func TestDefineStepsRequiresDraft(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	_, err := eng.DefineApprovalSteps(testActor, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRedefineStepsReplacesWorkflow(t *testing.T) {
	eng, db, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverOne.UserID},
		{ApproverID: approverTwo.UserID},
	})
	defineTestSteps(t, eng, contract.ID, []ApprovalStepInput{
		{ApproverID: approverTwo.UserID},
	})

	var steps []model.ContractApproval
	if err := db.Where("contract_id = ?", contract.ID).
		Order("step_number asc").Find(&steps).Error; err != nil {
		t.Fatal(err)
	}
	if len(steps) != 1 {
		t.Fatalf("steps = %d, want 1 after redefine", len(steps))
	}
	if steps[0].ApproverID != approverTwo.UserID || steps[0].StepNumber != 1 {
		t.Fatalf("unexpected surviving step: %+v", steps[0])
	}
}
